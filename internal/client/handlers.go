package client

import (
	"syncio-client/internal/encryption"
	"syncio-client/internal/packet"
	"syncio-client/internal/protocol/callback"
)

// SetHandler 注册（或替换）类型 T 的处理器，fn 为 nil 时移除
// 会话内部处理的数据包类型返回 ErrReservedPacket
func SetHandler[T packet.Packet](s *Session, fn func(s *Session, p T)) error {
	return callback.SetHandler(s.callbacks, fn)
}

// RemoveHandler 移除类型 T 的处理器
func RemoveHandler[T packet.Packet](s *Session) {
	callback.RemoveHandler[*Session, T](s.callbacks)
}

// SetAnyHandler 设置没有类型处理器时使用的通用处理器，nil 移除
func (s *Session) SetAnyHandler(fn func(s *Session, p packet.Packet)) {
	s.callbacks.SetAnyHandler(fn)
}

// SetArrayHandler 设置原始字段数组处理器，nil 移除
func (s *Session) SetArrayHandler(fn func(s *Session, values packet.ObjectArray)) {
	s.callbacks.SetArrayHandler(fn)
}

// SetEncryption 设置加密变换，立即作用于当前连接以及之后的连接；nil 关闭加密
func (s *Session) SetEncryption(transform encryption.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transform = transform
	if s.conn != nil {
		s.conn.packager.SetEncryption(transform)
	}
}
