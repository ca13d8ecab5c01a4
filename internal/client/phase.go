package client

import (
	"context"
)

// PhaseResult 一个等待阶段（流通道握手或 UDP 确认）的结果
type PhaseResult int

const (
	// PhaseNotStarted 没有可等待的阶段
	PhaseNotStarted PhaseResult = iota
	// PhaseSucceeded 对端确认成功
	PhaseSucceeded
	// PhaseRejected 对端明确拒绝
	PhaseRejected
	// PhaseTimedOut 等待超时，阶段仍未完成
	PhaseTimedOut
	// PhaseAborted 阶段完成前连接已拆除
	PhaseAborted
)

func (r PhaseResult) String() string {
	switch r {
	case PhaseNotStarted:
		return "not-started"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseRejected:
		return "rejected"
	case PhaseTimedOut:
		return "timed-out"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// phase 单次完成的 future，每个等待阶段新建一个
// resolve 只能在 Session.mu 下调用
type phase struct {
	done   chan struct{}
	result PhaseResult
}

func newPhase() *phase {
	return &phase{done: make(chan struct{})}
}

// resolved 阶段是否已完成
func (p *phase) resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// resolve 完成阶段，重复调用返回 false
func (p *phase) resolve(result PhaseResult) bool {
	if p.resolved() {
		return false
	}
	p.result = result
	close(p.done)
	return true
}

// wait 等待阶段完成，ctx 先结束时返回 PhaseTimedOut
func (p *phase) wait(ctx context.Context) PhaseResult {
	select {
	case <-p.done:
		return p.result
	case <-ctx.Done():
		return PhaseTimedOut
	}
}
