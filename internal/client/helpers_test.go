package client

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/packet"
	"syncio-client/internal/testutils/peer"
)

// chatMessage 测试用业务数据包
type chatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (*chatMessage) PacketName() string { return "test.chat" }

// pingMessage 没有类型处理器的业务数据包
type pingMessage struct {
	Seq int `json:"seq"`
}

func (*pingMessage) PacketName() string { return "test.ping" }

func init() {
	packet.Register(func() packet.Packet { return &chatMessage{} })
	packet.Register(func() packet.Packet { return &pingMessage{} })
}

func startPeer(t *testing.T, config *peer.Config) *peer.Peer {
	t.Helper()
	if config == nil {
		config = &peer.Config{}
	}
	if config.Logger == nil {
		config.Logger = corelog.NewNopLogger()
	}
	p, err := peer.Start(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestSession(t *testing.T, p *peer.Peer, mutate ...func(*Config)) *Session {
	t.Helper()
	return newTestSessionWithOptions(t, p, nil, mutate...)
}

func newTestSessionWithOptions(t *testing.T, p *peer.Peer, opts []Option, mutate ...func(*Config)) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.Server.ConnectTimeout = 2 * time.Second
	if p != nil {
		cfg.UDP.Port = p.UDPPort()
	}
	for _, fn := range mutate {
		fn(cfg)
	}
	s := New(cfg, append([]Option{WithLogger(corelog.NewNopLogger())}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connectAndHandshake(t *testing.T, s *Session, p *peer.Peer) {
	t.Helper()
	require.NoError(t, s.Connect(t.Context(), p.Host(), p.Port()))
	require.True(t, s.WaitForHandshake(), "handshake should succeed")
}

// events 记录会话通知
type events struct {
	mu          sync.Mutex
	handshakes  []handshakeEvent
	disconnects []error
}

type handshakeEvent struct {
	identity uuid.UUID
	success  bool
}

func watch(s *Session) *events {
	ev := &events{}
	s.OnHandshakeCompleted(func(_ *Session, identity uuid.UUID, success bool) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.handshakes = append(ev.handshakes, handshakeEvent{identity: identity, success: success})
	})
	s.OnDisconnected(func(_ *Session, err error) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.disconnects = append(ev.disconnects, err)
	})
	return ev
}

func (ev *events) handshakeEvents() []handshakeEvent {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]handshakeEvent(nil), ev.handshakes...)
}

func (ev *events) disconnectEvents() []error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]error(nil), ev.disconnects...)
}

// expectInbound 等待服务端收到下一个业务数据包
func expectInbound(t *testing.T, p *peer.Peer) peer.Inbound {
	t.Helper()
	select {
	case in := <-p.Received():
		return in
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive a packet")
		return peer.Inbound{}
	}
}

// expectNoInbound 确认服务端在短时间内没有收到数据包
func expectNoInbound(t *testing.T, p *peer.Peer) {
	t.Helper()
	select {
	case in := <-p.Received():
		t.Fatalf("peer unexpectedly received %s", in.Packet.PacketName())
	case <-time.After(200 * time.Millisecond):
	}
}
