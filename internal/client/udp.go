package client

import (
	"context"
	"net"
	"strconv"

	"syncio-client/internal/client/transport"
	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/core/metrics"
	"syncio-client/internal/packet"
)

// TryOpenUDPConnection 打开 UDP 旁路通道并请求对端确认
// 握手成功前返回 ErrHandshakeRequired 且没有任何副作用；已确认时直接返回 nil
func (s *Session) TryOpenUDPConnection() error {
	s.mu.Lock()
	c := s.conn
	if c == nil || c.handshake != handshakeSucceeded {
		s.mu.Unlock()
		return ErrHandshakeRequired
	}
	if c.udpState == udpConfirmed {
		s.mu.Unlock()
		return nil
	}
	needSocket := c.udp == nil
	s.mu.Unlock()

	// 地址解析可能阻塞，套接字在锁外创建
	var opened *transport.DatagramConn
	if needSocket {
		var err error
		if opened, err = s.openDatagram(c); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		if opened != nil {
			_ = opened.Close()
		}
		return ErrHandshakeRequired
	}
	if opened != nil {
		if c.udp == nil {
			c.udp = opened
			opened.Start()
		} else {
			defer opened.Close()
		}
	}
	s.armUDPPhase(c)
	udp := c.udp
	identity := c.identity
	s.mu.Unlock()

	s.logger.Debugf("Session: requesting udp confirmation for %s", identity)
	return udp.Send(&packet.UDPHandshakeRequest{Identity: identity})
}

// SendUDPHandshake 重新请求 UDP 确认
// 确认到达前 HasUDP 为 false；旁路通道尚未打开时返回 ErrUDPNotOpened
func (s *Session) SendUDPHandshake() error {
	s.mu.Lock()
	c := s.conn
	if c == nil || c.udp == nil {
		s.mu.Unlock()
		return ErrUDPNotOpened
	}
	c.hasUDP = false
	s.armUDPPhase(c)
	udp := c.udp
	identity := c.identity
	s.mu.Unlock()

	return udp.Send(&packet.UDPHandshakeRequest{Identity: identity})
}

// armUDPPhase 进入等待确认状态，没有挂起阶段时新建一个
// 调用方持有 s.mu
func (s *Session) armUDPPhase(c *connection) {
	c.udpState = udpAwaiting
	if c.udpPhase == nil || c.udpPhase.resolved() {
		c.udpPhase = newPhase()
	}
}

// openDatagram 创建绑定到连接身份的数据报通道，由调用方启动
func (s *Session) openDatagram(c *connection) (*transport.DatagramConn, error) {
	address := net.JoinHostPort(c.host, strconv.Itoa(s.config.udpPort(c.port)))
	network := transport.DatagramNetwork(s.config.Server.AddressFamily)

	udp, err := transport.DialDatagram(s.Ctx(), network, address, &transport.DatagramConfig{
		Logger:    s.logger,
		Packager:  c.packager,
		Identity:  c.identity,
		RateLimit: s.config.UDP.RateLimit,
		OnPacket: func(p packet.Packet) {
			metrics.Inc(s.metrics, metrics.PacketsReceived, udpLabels)
			s.dispatch(c, p)
		},
		OnDropped: func() {
			metrics.Inc(s.metrics, metrics.DatagramsDropped, nil)
		},
	})
	if err != nil {
		s.logger.Warnf("Session: failed to open udp side channel to %s: %v", address, err)
		return nil, coreerrors.Wrap(err, coreerrors.CodeConnectionError, "failed to open udp side channel")
	}
	s.logger.Infof("Session: udp side channel opened to %s", address)
	return udp, nil
}

// confirmUDP 处理 UDP 确认响应，流通道或旁路通道到达均可
func (s *Session) confirmUDP(c *connection, resp *packet.UDPHandshakeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != c || c.udp == nil || c.udpState != udpAwaiting {
		s.logger.Debugf("Session: ignoring udp confirmation outside of awaiting state")
		return
	}

	c.hasUDP = resp.Success
	result := PhaseRejected
	if resp.Success {
		result = PhaseSucceeded
	}
	metrics.Inc(s.metrics, metrics.UDPHandshakes, metrics.ResultLabels(result.String()))
	if resp.Success {
		c.udpState = udpConfirmed
		s.logger.Infof("Session: udp side channel confirmed")
	} else {
		c.udpState = udpRejected
		s.logger.Warnf("Session: udp side channel rejected by peer")
	}
	c.udpPhase.resolve(result)
}

// WaitForUDP 等待 UDP 确认，返回 HasUDP()
// 未打开旁路通道时立即返回 false，已确认时立即返回 true
func (s *Session) WaitForUDP() bool {
	s.WaitForUDPResult(context.Background())
	return s.HasUDP()
}

// WaitForUDPResult 等待 UDP 确认阶段的结果
// ctx 没有截止时间时使用 handshake_timeout
func (s *Session) WaitForUDPResult(ctx context.Context) PhaseResult {
	s.mu.Lock()
	c := s.conn
	if c == nil || c.udp == nil {
		s.mu.Unlock()
		return PhaseNotStarted
	}
	if c.hasUDP {
		s.mu.Unlock()
		return PhaseSucceeded
	}
	p := c.udpPhase
	s.mu.Unlock()

	if p == nil {
		return PhaseNotStarted
	}
	return s.waitPhase(ctx, p)
}
