package client

import (
	"syncio-client/internal/packet"
	"syncio-client/internal/protocol/remote"
)

// GetRemoteFunction 获取名为 name、结果类型为 T 的远程函数句柄
// 同名重复获取返回同一句柄；获取本身不发送任何数据，每次 Invoke/Call 发送一个请求
func GetRemoteFunction[T any](s *Session, name string) (*remote.Function[T], error) {
	return remote.Register[T](s.remotes, name)
}

// PendingRemoteCalls 当前挂起的远程调用数
func (s *Session) PendingRemoteCalls() int {
	return s.remotes.Pending()
}

func (s *Session) invokeRemote(req *packet.RemoteCallRequest) error {
	c := s.activeConnection()
	if c == nil {
		return ErrNotConnected
	}
	return c.stream.Send(req, func(err error) {
		if err != nil {
			s.logger.Debugf("Session: remote call %s (%s) not delivered: %v", req.Name, req.CallID, err)
		}
	})
}
