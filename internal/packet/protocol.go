package packet

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 协议内部数据包（由会话层自身处理，不进入用户回调表）
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	HandshakeResultName      = "syncio.handshake"
	UDPHandshakeRequestName  = "syncio.udp_handshake"
	UDPHandshakeResponseName = "syncio.udp_handshake_resp"
	RemoteCallRequestName    = "syncio.remote_call"
	RemoteCallResponseName   = "syncio.remote_call_resp"
)

// HandshakeResult 握手结果（Server -> Client，连接建立后由服务端主动发送）
type HandshakeResult struct {
	Success  bool      `json:"success"`
	Identity uuid.UUID `json:"identity"` // 服务端分配的会话标识，仅 Success 时有意义
}

func (*HandshakeResult) PacketName() string { return HandshakeResultName }

// UDPHandshakeRequest UDP 确认请求（Client -> Server，经 UDP 通道发送）
type UDPHandshakeRequest struct {
	Identity uuid.UUID `json:"identity"`
}

func (*UDPHandshakeRequest) PacketName() string { return UDPHandshakeRequestName }

// UDPHandshakeResponse UDP 确认响应（Server -> Client，任一通道）
type UDPHandshakeResponse struct {
	Success bool `json:"success"`
}

func (*UDPHandshakeResponse) PacketName() string { return UDPHandshakeResponseName }

// RemoteCallStatus 远程调用结果状态
type RemoteCallStatus uint8

const (
	RemoteCallSuccess   RemoteCallStatus = 0
	RemoteCallException RemoteCallStatus = 1 // 服务端执行出错
	RemoteCallNotFound  RemoteCallStatus = 2 // 服务端未注册该过程
)

// String 返回状态名
func (s RemoteCallStatus) String() string {
	switch s {
	case RemoteCallSuccess:
		return "success"
	case RemoteCallException:
		return "exception"
	case RemoteCallNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// RemoteCallRequest 远程调用请求（Client -> Server）
type RemoteCallRequest struct {
	CallID uuid.UUID         `json:"call_id"`
	Name   string            `json:"name"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

func (*RemoteCallRequest) PacketName() string { return RemoteCallRequestName }

// RemoteCallResponse 远程调用响应（Server -> Client）
type RemoteCallResponse struct {
	CallID uuid.UUID        `json:"call_id"`
	Status RemoteCallStatus `json:"status"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func (*RemoteCallResponse) PacketName() string { return RemoteCallResponseName }

func init() {
	Register(func() Packet { return &HandshakeResult{} })
	Register(func() Packet { return &UDPHandshakeRequest{} })
	Register(func() Packet { return &UDPHandshakeResponse{} })
	Register(func() Packet { return &RemoteCallRequest{} })
	Register(func() Packet { return &RemoteCallResponse{} })
}
