package cli

import (
	"github.com/google/uuid"

	"syncio-client/internal/client"
	"syncio-client/internal/packet"
)

// Watch 把会话的通知和收到的数据包打印到 output
func Watch(s *client.Session, output *Output) {
	s.OnHandshakeCompleted(func(_ *client.Session, identity uuid.UUID, success bool) {
		if success {
			output.Success("Handshake completed, identity %s", identity)
			return
		}
		output.Error("Handshake rejected by server")
	})
	s.OnDisconnected(func(_ *client.Session, err error) {
		if err != nil {
			output.Warning("Disconnected: %v", err)
			return
		}
		output.Info("Disconnected")
	})
	s.SetAnyHandler(func(_ *client.Session, p packet.Packet) {
		output.Packet(p)
	})
	s.SetArrayHandler(func(_ *client.Session, values packet.ObjectArray) {
		output.Packet(values)
	})
}
