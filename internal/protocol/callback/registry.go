// Package callback 按数据包运行时类型分发到处理器
//
// 分发规则：
//   - 原始字段数组 -> 数组处理器
//   - 其他数据包   -> 精确类型处理器，不存在时 -> 通用处理器
//
// 一个数据包至多交给一个处理器。处理器在接收 goroutine 上同步执行，不应阻塞。
package callback

import (
	"reflect"
	"runtime/debug"
	"sync"

	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/packet"
)

// ErrReservedPacket 数据包类型由会话层内部处理，不允许注册用户处理器
var ErrReservedPacket = coreerrors.New(coreerrors.CodeConflict, "packet type is reserved for internal handling")

// Config 回调表配置
type Config struct {
	Logger corelog.Logger
	// Reserved 不允许注册用户处理器的数据包类型
	Reserved []packet.Packet
}

// Registry 回调表，S 为分发时传给处理器的发送方类型
type Registry[S any] struct {
	mu           sync.RWMutex
	typed        map[reflect.Type]func(S, packet.Packet)
	anyHandler   func(S, packet.Packet)
	arrayHandler func(S, packet.ObjectArray)
	reserved     map[reflect.Type]struct{}
	logger       corelog.Logger
}

var objectArrayType = reflect.TypeOf(packet.ObjectArray(nil))

// NewRegistry 创建回调表
func NewRegistry[S any](config *Config) *Registry[S] {
	if config == nil {
		config = &Config{}
	}
	r := &Registry[S]{
		typed:    make(map[reflect.Type]func(S, packet.Packet)),
		reserved: map[reflect.Type]struct{}{objectArrayType: {}},
		logger:   corelog.OrDefault(config.Logger),
	}
	for _, p := range config.Reserved {
		r.reserved[reflect.TypeOf(p)] = struct{}{}
	}
	return r
}

// SetHandler 注册（或替换）类型 T 的处理器
func SetHandler[S any, T packet.Packet](r *Registry[S], fn func(S, T)) error {
	key := reflect.TypeOf((*T)(nil)).Elem()
	if _, reserved := r.reserved[key]; reserved {
		return coreerrors.Wrapf(ErrReservedPacket, coreerrors.CodeConflict, "cannot register handler for %s", key)
	}
	if fn == nil {
		RemoveHandler[S, T](r)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.typed[key] = func(sender S, p packet.Packet) {
		fn(sender, p.(T))
	}
	return nil
}

// RemoveHandler 移除类型 T 的处理器
func RemoveHandler[S any, T packet.Packet](r *Registry[S]) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.typed, key)
}

// HasHandler 检查类型 T 是否已注册处理器
func HasHandler[S any, T packet.Packet](r *Registry[S]) bool {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.typed[key]
	return ok
}

// SetAnyHandler 设置通用处理器（nil 移除）
func (r *Registry[S]) SetAnyHandler(fn func(S, packet.Packet)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anyHandler = fn
}

// SetArrayHandler 设置原始字段数组处理器（nil 移除）
func (r *Registry[S]) SetArrayHandler(fn func(S, packet.ObjectArray)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arrayHandler = fn
}

// Handle 分发数据包，返回是否有处理器接收
// 处理器 panic 会被恢复并记录，不影响接收循环
func (r *Registry[S]) Handle(sender S, p packet.Packet) (handled bool) {
	if p == nil {
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("Callback: handler for %s panicked: %v\n%s", p.PacketName(), rec, debug.Stack())
		}
	}()

	if arr, ok := p.(packet.ObjectArray); ok {
		r.mu.RLock()
		fn := r.arrayHandler
		r.mu.RUnlock()
		if fn == nil {
			r.logger.Debugf("Callback: no array handler, dropping %d fields", len(arr))
			return false
		}
		fn(sender, arr)
		return true
	}

	r.mu.RLock()
	fn, exists := r.typed[reflect.TypeOf(p)]
	anyFn := r.anyHandler
	r.mu.RUnlock()

	if exists {
		fn(sender, p)
		return true
	}
	if anyFn != nil {
		anyFn(sender, p)
		return true
	}

	r.logger.Debugf("Callback: no handler for packet type %s", p.PacketName())
	return false
}
