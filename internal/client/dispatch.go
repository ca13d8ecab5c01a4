package client

import (
	"syncio-client/internal/packet"
)

// dispatch 分发来自连接 c 的数据包
// 内部数据包走固定路由，不进入用户回调表；其余交给回调表
func (s *Session) dispatch(c *connection, p packet.Packet) {
	if route, ok := s.internal[p.PacketName()]; ok {
		route(c, p)
		return
	}

	s.mu.Lock()
	current := s.conn == c
	s.mu.Unlock()
	if !current {
		s.logger.Debugf("Session: dropping %s from a replaced connection", p.PacketName())
		return
	}

	if !s.callbacks.Handle(s, p) {
		s.logger.Debugf("Session: no handler for %s", p.PacketName())
	}
}
