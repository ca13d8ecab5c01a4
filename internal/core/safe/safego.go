// Package safe 提供带 panic 恢复的 goroutine 启动
package safe

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	corelog "syncio-client/internal/core/log"
)

var (
	activeCount atomic.Int64
	totalCount  atomic.Int64
	panicCount  atomic.Int64
)

// Stats Goroutine 统计信息
type Stats struct {
	Active     int64 // 当前活跃数量
	Total      int64 // 累计创建数量
	PanicCount int64 // panic 次数
}

// GetStats 获取统计信息
func GetStats() Stats {
	return Stats{
		Active:     activeCount.Load(),
		Total:      totalCount.Load(),
		PanicCount: panicCount.Load(),
	}
}

// GoWithCallback 安全启动 Goroutine，name 用于日志标识，onPanic 在恢复 panic 后于同一 goroutine 上调用
func GoWithCallback(name string, fn func(), onPanic func(recovered any)) {
	totalCount.Add(1)
	activeCount.Add(1)
	go func() {
		defer activeCount.Add(-1)
		run(name, fn, onPanic)
	}()
}

func run(name string, fn func(), onPanic func(recovered any)) {
	defer func() {
		if r := recover(); r != nil {
			panicCount.Add(1)
			corelog.Errorf("SafeGo[%s]: panic recovered: %v\n%s", name, r, debug.Stack())
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	fn()
}

// WaitGroup 跟踪一组安全 Goroutine，零值可用
type WaitGroup struct {
	wg sync.WaitGroup
}

// Go 在 WaitGroup 中安全启动 Goroutine
func (w *WaitGroup) Go(name string, fn func(), onPanic func(recovered any)) {
	w.wg.Add(1)
	GoWithCallback(name, func() {
		defer w.wg.Done()
		run(name, fn, onPanic)
	}, nil)
}

// Wait 等待所有 Goroutine 完成
func (w *WaitGroup) Wait() {
	w.wg.Wait()
}
