// Package remote 实现远程调用的请求/响应关联
//
// 每个出站调用携带唯一 CallID，对应的挂起条目只会被移除一次：
// 收到匹配响应、context 取消/超时、发送失败或连接拆除，先到先得。
package remote

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/packet"
)

// Invoker 负责把调用请求发往对端
type Invoker interface {
	InvokeRemote(req *packet.RemoteCallRequest) error
}

// InvokerFunc 函数适配器
type InvokerFunc func(req *packet.RemoteCallRequest) error

// InvokeRemote 实现 Invoker 接口
func (f InvokerFunc) InvokeRemote(req *packet.RemoteCallRequest) error {
	return f(req)
}

// Config 远程调用表配置
type Config struct {
	Logger corelog.Logger
	// CallTimeout 调用方 context 没有截止时间时使用的默认超时，0 表示不限
	CallTimeout time.Duration
}

// settledHistorySize 记录最近完成的调用数，用于区分迟到响应和未知响应
const settledHistorySize = 256

// resolver 挂起调用的完成回调
type resolver func(resp *packet.RemoteCallResponse, err error)

// Registry 远程调用表
type Registry struct {
	mu        sync.Mutex
	pending   map[uuid.UUID]resolver
	functions map[string]any
	settled   *lru.Cache[uuid.UUID, struct{}]

	invoker     Invoker
	callTimeout time.Duration
	logger      corelog.Logger
}

// NewRegistry 创建远程调用表
func NewRegistry(invoker Invoker, config *Config) *Registry {
	if config == nil {
		config = &Config{}
	}
	settled, _ := lru.New[uuid.UUID, struct{}](settledHistorySize)
	return &Registry{
		pending:     make(map[uuid.UUID]resolver),
		settled:     settled,
		functions:   make(map[string]any),
		invoker:     invoker,
		callTimeout: config.CallTimeout,
		logger:      corelog.OrDefault(config.Logger),
	}
}

// Register 获取名为 name、结果类型为 T 的远程函数句柄
// 同名重复注册返回同一句柄；结果类型不一致时返回 CodeConflict 错误。注册本身不发送任何数据
func Register[T any](r *Registry, name string) (*Function[T], error) {
	if name == "" {
		return nil, coreerrors.New(coreerrors.CodeInvalidParam, "remote function name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.functions[name]; ok {
		if fn, ok := existing.(*Function[T]); ok {
			return fn, nil
		}
		return nil, coreerrors.Newf(coreerrors.CodeConflict, "remote function %q already registered with a different result type", name)
	}

	fn := &Function[T]{registry: r, name: name}
	r.functions[name] = fn
	return fn, nil
}

// Raise 用响应完成对应的挂起调用，返回是否找到
func (r *Registry) Raise(resp *packet.RemoteCallResponse) bool {
	if resp == nil {
		return false
	}
	resolve, ok := r.take(resp.CallID)
	if !ok {
		if r.Settled(resp.CallID) {
			r.logger.Debugf("Remote: late or duplicate response for settled call %s", resp.CallID)
		} else {
			r.logger.Warnf("Remote: response for unknown call %s", resp.CallID)
		}
		return false
	}
	resolve(resp, nil)
	return true
}

// FailAll 以 err 终止全部挂起调用，返回终止数量
func (r *Registry) FailAll(err error) int {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uuid.UUID]resolver)
	r.mu.Unlock()

	for id, resolve := range pending {
		r.settled.Add(id, struct{}{})
		resolve(nil, err)
	}
	if len(pending) > 0 {
		r.logger.Infof("Remote: failed %d pending calls: %v", len(pending), err)
	}
	return len(pending)
}

// Settled 报告 id 是否属于最近已完成（响应、取消、超时或被终止）的调用
func (r *Registry) Settled(id uuid.UUID) bool {
	return r.settled.Contains(id)
}

// Pending 当前挂起调用数
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) add(id uuid.UUID, resolve resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = resolve
}

func (r *Registry) take(id uuid.UUID) (resolver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolve, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		r.settled.Add(id, struct{}{})
	}
	return resolve, ok
}

// cancel 在挂起条目仍存在时以 err 终止它
func (r *Registry) cancel(id uuid.UUID, err error) {
	if resolve, ok := r.take(id); ok {
		resolve(nil, err)
	}
}
