package client

import (
	"context"

	"github.com/google/uuid"

	"syncio-client/internal/core/metrics"
	"syncio-client/internal/packet"
)

// completeHandshake 处理握手结果
// 只有当前连接处于等待握手状态时才生效，同一连接的后续握手包被忽略
func (s *Session) completeHandshake(c *connection, result *packet.HandshakeResult) {
	s.mu.Lock()
	if s.conn != c || c.handshake != handshakeAwaiting {
		s.mu.Unlock()
		s.logger.Debugf("Session: ignoring handshake result outside of awaiting state")
		return
	}

	identity := uuid.Nil
	if result.Success {
		identity = result.Identity
		c.identity = identity
		c.handshake = handshakeSucceeded
		c.handshakePhase.resolve(PhaseSucceeded)
	} else {
		c.handshake = handshakeFailed
		c.handshakePhase.resolve(PhaseRejected)
	}
	s.mu.Unlock()

	if result.Success {
		metrics.Inc(s.metrics, metrics.Handshakes, metrics.ResultLabels(PhaseSucceeded.String()))
		metrics.Set(s.metrics, metrics.ConnectedGauge, 1, nil)
		s.logger.Infof("Session: handshake succeeded, identity=%s", identity)
	} else {
		metrics.Inc(s.metrics, metrics.Handshakes, metrics.ResultLabels(PhaseRejected.String()))
		s.logger.Warnf("Session: handshake rejected by %s", c.host)
	}
	s.notifyHandshake(identity, result.Success)
}

// WaitForHandshake 等待握手完成，返回 Connected()
// 已连接时立即返回 true；超时与被拒绝都返回 false
func (s *Session) WaitForHandshake() bool {
	if s.Connected() {
		return true
	}
	s.WaitForHandshakeResult(context.Background())
	return s.Connected()
}

// WaitForHandshakeResult 等待握手阶段的结果
// ctx 没有截止时间时使用 handshake_timeout
func (s *Session) WaitForHandshakeResult(ctx context.Context) PhaseResult {
	s.mu.Lock()
	c := s.conn
	if c == nil {
		s.mu.Unlock()
		return PhaseNotStarted
	}
	p := c.handshakePhase
	s.mu.Unlock()

	return s.waitPhase(ctx, p)
}

func (s *Session) waitPhase(ctx context.Context, p *phase) PhaseResult {
	if p.resolved() {
		return p.result
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.HandshakeTimeout)
		defer cancel()
	}
	return p.wait(ctx)
}
