package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/encryption"
	"syncio-client/internal/packet"
	"syncio-client/internal/testutils/peer"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 连接生命周期
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestSession_InitialState(t *testing.T) {
	s := newTestSession(t, nil)

	assert.False(t, s.Connected())
	assert.Equal(t, uuid.Nil, s.Identity())
	assert.False(t, s.HasUDP())
	assert.Equal(t, PhaseNotStarted, s.WaitForHandshakeResult(context.Background()))
	assert.Equal(t, PhaseNotStarted, s.WaitForUDPResult(context.Background()))
	assert.False(t, s.WaitForUDP())
}

func TestSession_HandshakeSuccess(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	ev := watch(s)

	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))
	require.True(t, s.WaitForHandshake())

	identity := s.Identity()
	assert.NotEqual(t, uuid.Nil, identity)
	assert.True(t, s.Connected())
	assert.Equal(t, PhaseSucceeded, s.WaitForHandshakeResult(context.Background()))

	require.Eventually(t, func() bool { return len(ev.handshakeEvents()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, handshakeEvent{identity: identity, success: true}, ev.handshakeEvents()[0])
	assert.Empty(t, ev.disconnectEvents())
}

func TestSession_WaitForHandshakeDoesNotBlockWhenConnected(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p, func(c *Config) { c.HandshakeTimeout = 5 * time.Second })
	connectAndHandshake(t, s, p)

	start := time.Now()
	assert.True(t, s.WaitForHandshake())
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSession_HandshakeTimeout(t *testing.T) {
	p := startPeer(t, &peer.Config{Handshake: peer.HandshakeSilent})
	s := newTestSession(t, p, func(c *Config) { c.HandshakeTimeout = 200 * time.Millisecond })
	ev := watch(s)

	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))

	start := time.Now()
	assert.False(t, s.WaitForHandshake())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.False(t, s.Connected())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Equal(t, PhaseTimedOut, s.WaitForHandshakeResult(ctx))

	// 超时不会断开连接
	assert.Empty(t, ev.handshakeEvents())
	assert.Empty(t, ev.disconnectEvents())
	assert.Equal(t, 1, p.ActiveConnections())
}

func TestSession_HandshakeRejected(t *testing.T) {
	p := startPeer(t, &peer.Config{Handshake: peer.HandshakeReject})
	s := newTestSession(t, p, func(c *Config) { c.HandshakeTimeout = 5 * time.Second })
	ev := watch(s)

	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))

	assert.Equal(t, PhaseRejected, s.WaitForHandshakeResult(context.Background()))
	start := time.Now()
	assert.False(t, s.WaitForHandshake())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, s.Connected())

	require.Eventually(t, func() bool { return len(ev.handshakeEvents()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, handshakeEvent{identity: uuid.Nil, success: false}, ev.handshakeEvents()[0])

	// 拒绝不会自动断开，也不会重试
	assert.Empty(t, ev.disconnectEvents())
	assert.Equal(t, 1, p.Accepted())
}

func TestSession_DuplicateHandshakeIgnored(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	ev := watch(s)
	connectAndHandshake(t, s, p)
	identity := s.Identity()

	arrays := make(chan packet.ObjectArray, 1)
	s.SetArrayHandler(func(_ *Session, values packet.ObjectArray) { arrays <- values })

	require.NoError(t, p.Broadcast(&packet.HandshakeResult{Success: true, Identity: uuid.New()}))
	require.NoError(t, p.Broadcast(&packet.HandshakeResult{Success: false}))
	require.NoError(t, p.Broadcast(packet.ObjectArray{"sync"}))

	select {
	case <-arrays:
	case <-time.After(2 * time.Second):
		t.Fatal("array not delivered")
	}

	assert.Equal(t, identity, s.Identity())
	assert.True(t, s.Connected())
	assert.Len(t, ev.handshakeEvents(), 1)
}

func TestSession_ConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	s := newTestSession(t, nil)
	ev := watch(s)

	err = s.Connect(context.Background(), "127.0.0.1", port)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConnectionError))
	assert.False(t, s.Connected())
	assert.Equal(t, PhaseNotStarted, s.WaitForHandshakeResult(context.Background()))
	assert.Empty(t, ev.disconnectEvents())
}

func TestSession_ConnectInvalidParams(t *testing.T) {
	s := newTestSession(t, nil)

	err := s.Connect(context.Background(), "127.0.0.1", 0)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidParam))

	err = s.Connect(context.Background(), "", 7000)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidParam))
}

func TestSession_FailedReconnectKeepsExistingConnection(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	connectAndHandshake(t, s, p)
	identity := s.Identity()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	require.Error(t, s.Connect(context.Background(), "127.0.0.1", port))
	assert.Equal(t, identity, s.Identity())
}

func TestSession_ReconnectReplacesConnection(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	ev := watch(s)

	connectAndHandshake(t, s, p)
	first := s.Identity()

	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))

	// 旧连接在新连接安装前已断开，通知收到 nil
	disconnects := ev.disconnectEvents()
	require.Len(t, disconnects, 1)
	assert.NoError(t, disconnects[0])

	require.True(t, s.WaitForHandshake())
	second := s.Identity()
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, p.Accepted())
	assert.Eventually(t, func() bool { return p.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	handshakes := ev.handshakeEvents()
	require.Len(t, handshakes, 2)
	assert.Equal(t, first, handshakes[0].identity)
	assert.Equal(t, second, handshakes[1].identity)
}

func TestSession_PeerCloseNotifiesDisconnect(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	ev := watch(s)
	connectAndHandshake(t, s, p)

	p.DropConnections()

	require.Eventually(t, func() bool { return len(ev.disconnectEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.Connected())
	assert.Equal(t, uuid.Nil, s.Identity())

	// 不会自动重连
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, p.Accepted())
	assert.Len(t, ev.disconnectEvents(), 1)
}

func TestSession_DisconnectNotifiesOnce(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	ev := watch(s)
	connectAndHandshake(t, s, p)

	s.Disconnect()
	s.Disconnect()

	disconnects := ev.disconnectEvents()
	require.Len(t, disconnects, 1)
	assert.NoError(t, disconnects[0])
	assert.False(t, s.Connected())
	assert.Equal(t, PhaseNotStarted, s.WaitForHandshakeResult(context.Background()))
}

func TestSession_DisconnectAbortsPendingHandshake(t *testing.T) {
	p := startPeer(t, &peer.Config{Handshake: peer.HandshakeSilent})
	s := newTestSession(t, p, func(c *Config) { c.HandshakeTimeout = 5 * time.Second })
	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))

	result := make(chan PhaseResult, 1)
	go func() { result <- s.WaitForHandshakeResult(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	s.Disconnect()

	select {
	case r := <-result:
		assert.Equal(t, PhaseAborted, r)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by disconnect")
	}
}

func TestSession_CloseRejectsConnect(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	connectAndHandshake(t, s, p)

	require.NoError(t, s.Close())
	assert.False(t, s.Connected())

	err := s.Connect(context.Background(), p.Host(), p.Port())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_ParentCancelClosesSession(t *testing.T) {
	p := startPeer(t, nil)
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestSessionWithOptions(t, p, []Option{WithContext(parent)})
	ev := watch(s)
	connectAndHandshake(t, s, p)

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		s.SendWithCompletion(&chatMessage{Text: "before"}, func(error) { completed.Add(1) })
	}
	cancel()

	require.Eventually(t, func() bool { return len(ev.disconnectEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, ev.disconnectEvents()[0])
	assert.False(t, s.Connected())

	for i := 0; i < 10; i++ {
		s.SendWithCompletion(&chatMessage{Text: "after"}, func(err error) {
			assert.ErrorIs(t, err, ErrNotConnected)
			completed.Add(1)
		})
	}
	require.Eventually(t, func() bool { return completed.Load() == 20 }, 2*time.Second, 10*time.Millisecond)

	err := s.Connect(context.Background(), p.Host(), p.Port())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, p.Accepted())
	require.Eventually(t, s.IsClosed, 2*time.Second, 10*time.Millisecond)
}

// runWithin 在限定时间内执行 fn，超时视为死锁
func runWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("call did not return, disconnect handler deadlocked")
	}
}

func TestSession_DisconnectHandlerMayDisconnect(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	connectAndHandshake(t, s, p)

	var calls atomic.Int32
	s.OnDisconnected(func(ss *Session, err error) {
		calls.Add(1)
		ss.Disconnect()
	})

	runWithin(t, 2*time.Second, s.Disconnect)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.Connected())
}

func TestSession_DisconnectHandlerMayReconnect(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	connectAndHandshake(t, s, p)

	var once sync.Once
	reconnectErr := make(chan error, 1)
	s.OnDisconnected(func(ss *Session, err error) {
		once.Do(func() { reconnectErr <- ss.Connect(context.Background(), p.Host(), p.Port()) })
	})

	runWithin(t, 2*time.Second, s.Disconnect)
	require.NoError(t, <-reconnectErr)
	assert.True(t, s.WaitForHandshake())
	assert.Equal(t, 2, p.Accepted())
}

func TestSession_ReplacedConnectionNotifiesAfterConnectReturns(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p)
	connectAndHandshake(t, s, p)

	var fired atomic.Bool
	notified := make(chan bool, 1)
	s.OnDisconnected(func(ss *Session, err error) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		// connectMu 已释放，可以查询并操作会话
		ss.Disconnect()
		notified <- ss.Connected()
	})

	runWithin(t, 2*time.Second, func() {
		require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))
	})
	select {
	case connected := <-notified:
		assert.False(t, connected)
	case <-time.After(2 * time.Second):
		t.Fatal("replaced connection did not notify")
	}
}

func TestSession_ConnectViaWebSocketProtocolFailsAgainstRawPeer(t *testing.T) {
	p := startPeer(t, nil)
	s := newTestSession(t, p, func(c *Config) {
		c.Server.Protocol = "websocket"
		c.Server.ConnectTimeout = 500 * time.Millisecond
	})

	err := s.Connect(context.Background(), p.Host(), p.Port())
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConnectionError))
	assert.False(t, s.Connected())
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 加密
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestSession_EncryptedSession(t *testing.T) {
	key, err := encryption.GenerateKeyBase64()
	require.NoError(t, err)
	transform, err := encryption.NewFromBase64(encryption.MethodChaCha20Poly1305, key)
	require.NoError(t, err)

	p := startPeer(t, &peer.Config{Transform: transform})
	s := newTestSession(t, p, func(c *Config) {
		c.Encryption = EncryptionConfig{Method: string(encryption.MethodChaCha20Poly1305), Key: key}
	})
	connectAndHandshake(t, s, p)

	s.Send(&chatMessage{From: "alice", Text: "secret"})
	in := expectInbound(t, p)
	assert.Equal(t, &chatMessage{From: "alice", Text: "secret"}, in.Packet)
}

func TestSession_SetEncryptionAppliesToNextConnection(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	transform, err := encryption.New(encryption.MethodAESGCM, key)
	require.NoError(t, err)

	p := startPeer(t, &peer.Config{Transform: transform, Handshake: peer.HandshakeAccept})
	s := newTestSession(t, p, func(c *Config) { c.HandshakeTimeout = 300 * time.Millisecond })

	// 未加密时无法解读握手结果
	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))
	assert.False(t, s.WaitForHandshake())

	s.SetEncryption(transform)
	require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))
	assert.True(t, s.WaitForHandshake())
}

func TestPhaseResult_String(t *testing.T) {
	assert.Equal(t, "not-started", PhaseNotStarted.String())
	assert.Equal(t, "succeeded", PhaseSucceeded.String())
	assert.Equal(t, "rejected", PhaseRejected.String())
	assert.Equal(t, "timed-out", PhaseTimedOut.String())
	assert.Equal(t, "aborted", PhaseAborted.String())
	assert.Equal(t, "unknown", PhaseResult(42).String())
}

func TestSession_ConfigCopied(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)
	defer s.Close()

	cfg.Server.Port = 1
	assert.Equal(t, DefaultPort, s.Config().Server.Port)
}
