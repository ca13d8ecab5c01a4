// Package dispose 提供统一的资源释放基类
// 嵌入 Dispose 的组件获得：受父 context 约束的生命周期、幂等的 Close 以及按注册顺序执行的清理回调
package dispose

import (
	"context"
	"fmt"
	"sync"
)

// DisposeError 清理过程中的错误信息
type DisposeError struct {
	HandlerIndex int
	Err          error
}

func (e *DisposeError) Error() string {
	return fmt.Sprintf("cleanup handler[%d] failed: %v", e.HandlerIndex, e.Err)
}

func (e *DisposeError) Unwrap() error {
	return e.Err
}

// Disposable 统一的资源释放接口
type Disposable interface {
	Close() error
}

// Dispose 资源管理结构体
type Dispose struct {
	mu            sync.Mutex
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc
	cleanHandlers []func() error
}

// SetCtx 设置父 context 并注册清理回调
// 父 context 结束时只取消自身 context，不会自动执行清理回调
func (c *Dispose) SetCtx(parent context.Context, onClose func() error) {
	if parent == nil {
		parent = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx, c.cancel = context.WithCancel(parent)
	if onClose != nil {
		c.cleanHandlers = append(c.cleanHandlers, onClose)
	}
}

// AddCleanHandler 追加清理回调
func (c *Dispose) AddCleanHandler(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanHandlers = append(c.cleanHandlers, fn)
}

// Ctx 返回组件的 context
func (c *Dispose) Ctx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	return c.ctx
}

// IsClosed 是否已关闭
func (c *Dispose) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close 取消 context 并执行清理回调，重复调用返回 nil
// 返回第一个清理错误，其余清理回调仍会执行
func (c *Dispose) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	handlers := c.cleanHandlers
	c.cleanHandlers = nil
	c.mu.Unlock()

	var first error
	for i, handler := range handlers {
		if err := handler(); err != nil && first == nil {
			first = &DisposeError{HandlerIndex: i, Err: err}
		}
	}
	return first
}
