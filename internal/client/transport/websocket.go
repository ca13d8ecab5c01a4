//go:build !no_websocket

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
)

const (
	// DefaultWebSocketPath 未指定路径时使用的默认路径
	DefaultWebSocketPath = "/_syncio"
	webSocketBufferSize  = 32 * 1024
)

func init() {
	RegisterProtocol("websocket", 10, DialWebSocket) // 优先级 10（最高）
}

// WebSocketStreamConn 把 WebSocket 二进制消息序列包装为字节流
type WebSocketStreamConn struct {
	conn       *websocket.Conn
	reader     io.Reader
	readMu     sync.Mutex
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closed     chan struct{}
	remoteAddr net.Addr
}

// NewWebSocketStreamConn 包装已建立的 WebSocket 连接
func NewWebSocketStreamConn(conn *websocket.Conn, wsURL string) *WebSocketStreamConn {
	return &WebSocketStreamConn{
		conn:       conn,
		closed:     make(chan struct{}),
		remoteAddr: &wsAddr{addr: wsURL},
	}
}

// Read implements io.Reader
// 一条消息可以跨多次 Read 读取，读完后再取下一条
func (c *WebSocketStreamConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader != nil {
			n, err := c.reader.Read(p)
			if err == io.EOF {
				c.reader = nil
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		messageType, reader, err := c.conn.NextReader()
		if err != nil {
			select {
			case <-c.closed:
				return 0, io.EOF
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "websocket read failed")
		}
		if messageType != websocket.BinaryMessage {
			return 0, coreerrors.Newf(coreerrors.CodeProtocolError, "unexpected websocket message type: %d", messageType)
		}
		c.reader = reader
	}
}

// Write implements io.Writer，每次写入作为一条二进制消息
func (c *WebSocketStreamConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "websocket write failed")
	}
	return len(p), nil
}

// Close 发送关闭帧后关闭连接
func (c *WebSocketStreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *WebSocketStreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *WebSocketStreamConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

func (c *WebSocketStreamConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *WebSocketStreamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *WebSocketStreamConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// wsAddr implements net.Addr for WebSocket connections
type wsAddr struct {
	addr string
}

func (a *wsAddr) Network() string {
	return "websocket"
}

func (a *wsAddr) String() string {
	return a.addr
}

// NormalizeWebSocketURL 规范化 WebSocket URL：
//   - http(s):// 转换为 ws(s)://
//   - 缺少路径时使用 defaultPath（为空则为 DefaultWebSocketPath）
//   - host:port 形式补全 ws:// 前缀
func NormalizeWebSocketURL(address, defaultPath string) (string, error) {
	if address == "" {
		return "", coreerrors.New(coreerrors.CodeInvalidParam, "websocket address is empty")
	}
	if defaultPath == "" {
		defaultPath = DefaultWebSocketPath
	}
	if !strings.HasPrefix(defaultPath, "/") {
		defaultPath = "/" + defaultPath
	}

	if !strings.Contains(address, "://") {
		if strings.Contains(address, "/") {
			return "ws://" + address, nil
		}
		return fmt.Sprintf("ws://%s%s", address, defaultPath), nil
	}

	parsedURL, err := url.Parse(address)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeInvalidParam, "invalid URL format")
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	switch scheme {
	case "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	case "ws", "wss":
	default:
		return "", coreerrors.Newf(coreerrors.CodeInvalidParam, "unsupported websocket scheme %q", parsedURL.Scheme)
	}

	path := parsedURL.Path
	if path == "" {
		path = defaultPath
	}

	wsURL := fmt.Sprintf("%s://%s%s", scheme, parsedURL.Host, path)
	if parsedURL.RawQuery != "" {
		wsURL += "?" + parsedURL.RawQuery
	}
	return wsURL, nil
}

// DialWebSocket 建立 WebSocket 连接
// address 可以是 host:port、ws(s):// 或 http(s):// 形式
func DialWebSocket(ctx context.Context, address string, opts *DialOptions) (net.Conn, error) {
	wsURL, err := NormalizeWebSocketURL(address, opts.Path)
	if err != nil {
		return nil, err
	}

	handshakeTimeout := opts.Timeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 20 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   webSocketBufferSize,
		WriteBufferSize:  webSocketBufferSize,
		TLSClientConfig:  opts.TLS,
	}

	corelog.Debugf("Transport: dialing WebSocket %s", wsURL)
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "websocket dial failed")
	}
	return NewWebSocketStreamConn(conn, wsURL), nil
}
