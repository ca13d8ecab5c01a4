package client

import (
	"syncio-client/internal/core/metrics"
	"syncio-client/internal/packet"
)

// Send 通过流通道发送数据包，未连接时静默丢弃
func (s *Session) Send(p packet.Packet) {
	s.SendWithCompletion(p, nil)
}

// SendWithCompletion 通过流通道发送数据包
// done 在写出或失败后于写 goroutine 上调用；未连接时数据包被丢弃，done 收到 ErrNotConnected
func (s *Session) SendWithCompletion(p packet.Packet, done func(error)) {
	c := s.activeConnection()
	if c == nil {
		if done != nil {
			done(ErrNotConnected)
		}
		return
	}
	if err := c.stream.Send(p, done); err != nil {
		s.logger.Debugf("Session: failed to send %s: %v", p.PacketName(), err)
		return
	}
	metrics.Inc(s.metrics, metrics.PacketsSent, tcpLabels)
}

// SendArray 通过流通道发送原始字段数组，未连接时静默丢弃
func (s *Session) SendArray(values ...any) {
	s.SendArrayWithCompletion(values, nil)
}

// SendArrayWithCompletion 通过流通道发送原始字段数组，done 语义同 SendWithCompletion
func (s *Session) SendArrayWithCompletion(values []any, done func(error)) {
	c := s.activeConnection()
	if c == nil {
		if done != nil {
			done(ErrNotConnected)
		}
		return
	}
	if err := c.stream.SendArray(values, done); err != nil {
		s.logger.Debugf("Session: failed to send array: %v", err)
		return
	}
	metrics.Inc(s.metrics, metrics.PacketsSent, tcpLabels)
}

// SendUDP 通过 UDP 旁路通道发送数据包
// 未连接或旁路通道未打开时静默丢弃
func (s *Session) SendUDP(p packet.Packet) {
	c := s.activeConnection()
	if c == nil {
		return
	}
	s.mu.Lock()
	udp := c.udp
	s.mu.Unlock()
	if udp == nil {
		return
	}
	if err := udp.Send(p); err != nil {
		s.logger.Debugf("Session: failed to send %s over udp: %v", p.PacketName(), err)
		return
	}
	metrics.Inc(s.metrics, metrics.PacketsSent, udpLabels)
}

// SendUDPArray 通过 UDP 旁路通道发送原始字段数组
func (s *Session) SendUDPArray(values ...any) {
	c := s.activeConnection()
	if c == nil {
		return
	}
	s.mu.Lock()
	udp := c.udp
	s.mu.Unlock()
	if udp == nil {
		return
	}
	if err := udp.SendArray(values); err != nil {
		s.logger.Debugf("Session: failed to send array over udp: %v", err)
		return
	}
	metrics.Inc(s.metrics, metrics.PacketsSent, udpLabels)
}
