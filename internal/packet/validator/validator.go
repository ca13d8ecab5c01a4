// Package validator 校验反序列化后的协议数据包
package validator

import (
	"strings"

	"github.com/google/uuid"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/packet"
)

// Validate 校验数据包字段约束
// 未知的用户数据包类型不做校验
func Validate(p packet.Packet) error {
	if p == nil {
		return coreerrors.New(coreerrors.CodeInvalidPacket, "packet is nil")
	}

	switch v := p.(type) {
	case *packet.HandshakeResult:
		if v.Success && v.Identity == uuid.Nil {
			return coreerrors.NewPacketError(v.PacketName(), "successful handshake without identity", nil)
		}
	case *packet.UDPHandshakeRequest:
		if v.Identity == uuid.Nil {
			return coreerrors.NewPacketError(v.PacketName(), "missing identity", nil)
		}
	case *packet.RemoteCallRequest:
		if v.CallID == uuid.Nil {
			return coreerrors.NewPacketError(v.PacketName(), "missing call id", nil)
		}
		if strings.TrimSpace(v.Name) == "" {
			return coreerrors.NewPacketError(v.PacketName(), "missing procedure name", nil)
		}
	case *packet.RemoteCallResponse:
		if v.CallID == uuid.Nil {
			return coreerrors.NewPacketError(v.PacketName(), "missing call id", nil)
		}
		if v.Status > packet.RemoteCallNotFound {
			return coreerrors.NewPacketError(v.PacketName(), "unknown status "+v.Status.String(), nil)
		}
	}
	return nil
}
