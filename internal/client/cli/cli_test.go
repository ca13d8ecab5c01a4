package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncio-client/internal/client"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/packet"
	"syncio-client/internal/testutils/peer"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 工具函数
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestParseValues(t *testing.T) {
	values := ParseValues([]string{"1", "two", "true", `"3"`, `{"x":1}`, "[1,2]", "null", "1.5"})

	assert.Equal(t, []any{
		float64(1),
		"two",
		true,
		"3",
		map[string]any{"x": float64(1)},
		[]any{float64(1), float64(2)},
		nil,
		1.5,
	}, values)
	assert.Empty(t, ParseValues(nil))
}

func TestFilterCommands(t *testing.T) {
	assert.Equal(t, []string{"send"}, FilterCommands("se", GetAllCommands()))
	assert.Equal(t, []string{"quit", "q"}, FilterCommands("Q", GetAllCommands()))
	assert.Empty(t, FilterCommands("zzz", GetAllCommands()))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", FormatDuration(61*time.Minute))
	assert.Equal(t, "2d 3h", FormatDuration(51*time.Hour))
}

func TestOutput_Plain(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(&buf, true)

	out.Success("done %d", 1)
	out.Error("bad")
	out.Packet(packet.ObjectArray{"a", 1})

	assert.Contains(t, buf.String(), "[ok] done 1")
	assert.Contains(t, buf.String(), "[error] bad")
	assert.Contains(t, buf.String(), `<< $array ["a",1]`)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 控制台命令
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

type consoleHarness struct {
	peer    *peer.Peer
	session *client.Session
	console *Console
	buf     *bytes.Buffer
}

func newHarness(t *testing.T, connect bool) *consoleHarness {
	t.Helper()
	p, err := peer.Start(&peer.Config{
		Logger: corelog.NewNopLogger(),
		Functions: map[string]peer.Function{
			"add": func(args []json.RawMessage) (any, error) {
				var a, b float64
				if err := json.Unmarshal(args[0], &a); err != nil {
					return nil, err
				}
				if err := json.Unmarshal(args[1], &b); err != nil {
					return nil, err
				}
				return a + b, nil
			},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	cfg := client.DefaultConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.UDP.Port = p.UDPPort()
	s := client.New(cfg, client.WithLogger(corelog.NewNopLogger()))
	t.Cleanup(func() { _ = s.Close() })

	if connect {
		require.NoError(t, s.Connect(context.Background(), p.Host(), p.Port()))
		require.True(t, s.WaitForHandshake())
	}

	buf := &bytes.Buffer{}
	return &consoleHarness{
		peer:    p,
		session: s,
		console: newConsole(context.Background(), s, NewOutput(buf, true)),
		buf:     buf,
	}
}

func (h *consoleHarness) expectArray(t *testing.T, overUDP bool) packet.ObjectArray {
	t.Helper()
	select {
	case in := <-h.peer.Received():
		assert.Equal(t, overUDP, in.OverUDP)
		arr, ok := in.Packet.(packet.ObjectArray)
		require.True(t, ok, "expected object array, got %T", in.Packet)
		return arr
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive the array")
		return nil
	}
}

func TestConsole_Status(t *testing.T) {
	h := newHarness(t, true)

	assert.True(t, h.console.Execute("status"))
	assert.Contains(t, h.buf.String(), h.session.Identity().String())
	assert.Contains(t, h.buf.String(), "Connected:")
	assert.Contains(t, h.buf.String(), "Sent tcp/udp:")
	assert.Contains(t, h.buf.String(), "Goroutines:")
	assert.Contains(t, h.buf.String(), "panics")
}

func TestConsole_Send(t *testing.T) {
	h := newHarness(t, true)

	assert.True(t, h.console.Execute("send 1 two true"))
	assert.Equal(t, packet.ObjectArray{float64(1), "two", true}, h.expectArray(t, false))
	assert.Contains(t, h.buf.String(), "Queued 3 value(s)")

	h.buf.Reset()
	h.console.Execute("send")
	assert.Contains(t, h.buf.String(), "Usage: send")
}

func TestConsole_SendWhileDisconnected(t *testing.T) {
	h := newHarness(t, false)

	h.console.Execute("send hello")
	assert.Contains(t, h.buf.String(), "Not connected")
}

func TestConsole_Call(t *testing.T) {
	h := newHarness(t, true)

	h.console.Execute("call add 2 3")
	assert.Contains(t, h.buf.String(), "add = 5")

	h.buf.Reset()
	h.console.Execute("call missing")
	assert.Contains(t, h.buf.String(), "missing failed")
}

func TestConsole_UDP(t *testing.T) {
	h := newHarness(t, true)

	h.console.Execute("udp x")
	assert.Contains(t, h.buf.String(), "open-udp")

	h.buf.Reset()
	h.console.Execute("open-udp")
	assert.Contains(t, h.buf.String(), "UDP side channel confirmed")
	require.True(t, h.session.HasUDP())

	h.console.Execute("udp x 7")
	assert.Equal(t, packet.ObjectArray{"x", float64(7)}, h.expectArray(t, true))

	h.buf.Reset()
	h.console.Execute("reconfirm")
	assert.Contains(t, h.buf.String(), "UDP side channel confirmed")
}

func TestConsole_UnknownAndQuit(t *testing.T) {
	h := newHarness(t, false)

	assert.True(t, h.console.Execute("bogus"))
	assert.Contains(t, h.buf.String(), "Unknown command: bogus")
	assert.True(t, h.console.Execute("   "))
	assert.False(t, h.console.Execute("quit"))
	assert.False(t, h.console.Execute("EXIT"))
}
