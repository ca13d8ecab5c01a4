package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/packet"
)

// Function 绑定到某个会话和过程名的远程函数句柄
type Function[T any] struct {
	registry *Registry
	name     string
}

// Name 过程名
func (f *Function[T]) Name() string {
	return f.name
}

// Invoke 发起一次调用并立即返回 future
// ctx 控制挂起条目的生命周期：取消或超时即终止该调用
func (f *Function[T]) Invoke(ctx context.Context, args ...any) *Call[T] {
	call := &Call[T]{id: uuid.New(), name: f.name, done: make(chan struct{})}

	rawArgs := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			call.finish(nil, coreerrors.Wrapf(err, coreerrors.CodeInvalidParam, "failed to marshal argument %d of %s", i, f.name))
			return call
		}
		rawArgs = append(rawArgs, raw)
	}

	r := f.registry
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.callTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	r.add(call.id, func(resp *packet.RemoteCallResponse, err error) {
		cancel()
		call.finish(resp, err)
	})

	// 条目被移除后再触发时 cancel 为空操作
	context.AfterFunc(ctx, func() {
		code := coreerrors.CodeCancelled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = coreerrors.CodeTimeout
		}
		r.cancel(call.id, coreerrors.Wrapf(ctx.Err(), code, "remote call %s aborted", f.name))
	})

	req := &packet.RemoteCallRequest{CallID: call.id, Name: f.name, Args: rawArgs}
	if err := r.invoker.InvokeRemote(req); err != nil {
		r.cancel(call.id, err)
	}
	return call
}

// Call 发起调用并等待结果
// ctx 结束时调用会被终止，因此这里总能等到完成
func (f *Function[T]) Call(ctx context.Context, args ...any) (T, error) {
	call := f.Invoke(ctx, args...)
	<-call.done
	return call.result, call.err
}

// Call 一次远程调用的 future，只会完成一次
type Call[T any] struct {
	id     uuid.UUID
	name   string
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

// ID 调用关联标识
func (c *Call[T]) ID() uuid.UUID {
	return c.id
}

// Done 调用完成时关闭
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Result 返回结果，调用未完成时返回 CodeInvalidState 错误
func (c *Call[T]) Result() (T, error) {
	select {
	case <-c.done:
		return c.result, c.err
	default:
		var zero T
		return zero, coreerrors.Newf(coreerrors.CodeInvalidState, "remote call %s still pending", c.name)
	}
}

// Wait 等待调用完成
// ctx 结束只会停止等待，挂起条目由 Invoke 时的 ctx 管理
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		var zero T
		return zero, coreerrors.Wrapf(ctx.Err(), coreerrors.CodeCancelled, "stopped waiting for remote call %s", c.name)
	}
}

func (c *Call[T]) finish(resp *packet.RemoteCallResponse, err error) {
	c.once.Do(func() {
		defer close(c.done)

		if err != nil {
			c.err = err
			return
		}

		switch resp.Status {
		case packet.RemoteCallSuccess:
			if len(resp.Result) == 0 {
				return
			}
			if uerr := json.Unmarshal(resp.Result, &c.result); uerr != nil {
				c.err = coreerrors.Wrapf(uerr, coreerrors.CodeRemoteCall, "failed to decode result of %s", c.name)
			}
		case packet.RemoteCallNotFound:
			c.err = coreerrors.Newf(coreerrors.CodeRemoteCall, "remote function %s not found on peer", c.name)
		default:
			c.err = coreerrors.Newf(coreerrors.CodeRemoteCall, "remote function %s failed: %s", c.name, resp.Error)
		}
	})
}
