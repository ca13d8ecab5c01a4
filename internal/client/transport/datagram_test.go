package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/packet"
	"syncio-client/internal/packet/packager"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func TestDatagramConn_PrefixesIdentity(t *testing.T) {
	server := listenUDP(t)
	id := uuid.New()

	conn, err := DialDatagram(context.Background(), "udp", server.LocalAddr().String(), &DatagramConfig{
		Logger:   corelog.NewNopLogger(),
		Identity: id,
	})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, id, conn.Identity())

	require.NoError(t, conn.Send(&packet.UDPHandshakeRequest{Identity: id}))

	buf := make([]byte, packager.MaxDatagramSize)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := server.ReadFrom(buf)
	require.NoError(t, err)
	require.Greater(t, n, IdentityPrefixSize)

	gotID, err := uuid.FromBytes(buf[:IdentityPrefixSize])
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	pkt, err := packager.New(nil).Deserialize(buf[IdentityPrefixSize:n])
	require.NoError(t, err)
	assert.IsType(t, &packet.UDPHandshakeRequest{}, pkt)
}

func TestDatagramConn_ReceivesBarePayload(t *testing.T) {
	server := listenUDP(t)
	received := make(chan packet.Packet, 4)

	conn, err := DialDatagram(context.Background(), "udp", server.LocalAddr().String(), &DatagramConfig{
		Logger:   corelog.NewNopLogger(),
		Identity: uuid.New(),
		OnPacket: func(p packet.Packet) { received <- p },
	})
	require.NoError(t, err)
	defer conn.Close()
	conn.Start()

	// 先发一个包让服务端知道客户端地址
	require.NoError(t, conn.SendArray([]any{"ping"}))
	buf := make([]byte, packager.MaxDatagramSize)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, clientAddr, err := server.ReadFrom(buf)
	require.NoError(t, err)

	pk := packager.New(nil)
	_, err = server.WriteTo([]byte("garbage"), clientAddr)
	require.NoError(t, err)
	reply, err := pk.Serialize(&packet.UDPHandshakeResponse{Success: true})
	require.NoError(t, err)
	_, err = server.WriteTo(reply, clientAddr)
	require.NoError(t, err)

	select {
	case p := <-received:
		resp, ok := p.(*packet.UDPHandshakeResponse)
		require.True(t, ok)
		assert.True(t, resp.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not delivered")
	}
}

func TestDatagramConn_RateLimitDrops(t *testing.T) {
	server := listenUDP(t)

	var dropped atomic.Int32
	conn, err := DialDatagram(context.Background(), "udp", server.LocalAddr().String(), &DatagramConfig{
		Logger:    corelog.NewNopLogger(),
		Identity:  uuid.New(),
		RateLimit: 1,
		OnDropped: func() { dropped.Add(1) },
	})
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.SendArray([]any{i}))
	}

	buf := make([]byte, packager.MaxDatagramSize)
	count := 0
	for {
		require.NoError(t, server.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		if _, _, err := server.ReadFrom(buf); err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, int32(4), dropped.Load())
}

func TestDatagramConn_SendAfterClose(t *testing.T) {
	server := listenUDP(t)

	conn, err := DialDatagram(context.Background(), "udp", server.LocalAddr().String(), &DatagramConfig{Identity: uuid.New()})
	require.NoError(t, err)
	conn.Start()
	require.NoError(t, conn.Close())
	conn.Wait()

	assert.ErrorIs(t, conn.SendArray([]any{"late"}), ErrConnectionClosed)
}

// failingConn 每次读取都立即返回错误
type failingConn struct {
	net.Conn
	reads  atomic.Int32
	closed chan struct{}
	once   sync.Once
}

func newFailingConn() *failingConn {
	return &failingConn{closed: make(chan struct{})}
}

func (c *failingConn) Read([]byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.reads.Add(1)
	return 0, errors.New("connection refused")
}

func (c *failingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestDatagramConn_ReadErrorsBackOff(t *testing.T) {
	fc := newFailingConn()
	conn := NewDatagramConn(context.Background(), fc, &DatagramConfig{Logger: corelog.NewNopLogger()})
	conn.Start()

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, conn.Close())
	conn.Wait()

	// 10ms 起步翻倍退避，300ms 内只会重试少数几次
	reads := fc.reads.Load()
	assert.GreaterOrEqual(t, reads, int32(2))
	assert.Less(t, reads, int32(10))
}

func TestDatagramConn_CloseInterruptsBackoff(t *testing.T) {
	fc := newFailingConn()
	conn := NewDatagramConn(context.Background(), fc, &DatagramConfig{Logger: corelog.NewNopLogger()})
	conn.Start()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, conn.Close())
	conn.Wait()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDatagramConn_ParentCancelCloses(t *testing.T) {
	server := listenUDP(t)
	parent, cancel := context.WithCancel(context.Background())

	conn, err := DialDatagram(parent, "udp", server.LocalAddr().String(), &DatagramConfig{
		Logger:   corelog.NewNopLogger(),
		Identity: uuid.New(),
	})
	require.NoError(t, err)
	conn.Start()

	cancel()

	waited := make(chan struct{})
	go func() {
		conn.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop still running after parent cancel")
	}
	assert.True(t, conn.IsClosed())
}

func TestNextReadBackoff(t *testing.T) {
	assert.Equal(t, readErrorBackoffMin, nextReadBackoff(0))
	assert.Equal(t, 2*readErrorBackoffMin, nextReadBackoff(readErrorBackoffMin))
	assert.Equal(t, readErrorBackoffMax, nextReadBackoff(readErrorBackoffMax))
	assert.Equal(t, readErrorBackoffMax, nextReadBackoff(800*time.Millisecond))
}
