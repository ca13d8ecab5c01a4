//go:build !no_quic

package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
)

// QUICNextProto QUIC 握手使用的 ALPN 标识
const QUICNextProto = "syncio-quic"

func init() {
	RegisterProtocol("quic", 20, DialQUIC) // 优先级 20
}

// QUICStreamConn 把单条 QUIC 双向流包装为 net.Conn
type QUICStreamConn struct {
	stream    *quic.Stream
	conn      *quic.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

// DialQUIC 建立 QUIC 连接并打开一条双向流
func DialQUIC(ctx context.Context, address string, opts *DialOptions) (net.Conn, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: true}
	if opts.TLS != nil {
		tlsConf = opts.TLS.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{QUICNextProto}
	}

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 10 * time.Second
	}
	quicConf := &quic.Config{
		MaxIdleTimeout:  3 * keepAlive,
		KeepAlivePeriod: keepAlive,
	}

	corelog.Debugf("Transport: dialing QUIC to %s", address)
	conn, err := quic.DialAddr(ctx, address, tlsConf, quicConf)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "quic dial failed")
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "quic open stream failed")
	}

	return &QUICStreamConn{
		stream: stream,
		conn:   conn,
		closed: make(chan struct{}),
	}, nil
}

// Read implements io.Reader
func (c *QUICStreamConn) Read(p []byte) (int, error) {
	n, err := c.stream.Read(p)
	if err != nil {
		select {
		case <-c.closed:
			return n, io.EOF
		default:
		}
	}
	return n, err
}

// Write implements io.Writer
func (c *QUICStreamConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	return c.stream.Write(p)
}

// Close 关闭流和底层连接
func (c *QUICStreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.stream.Close()
		err = c.conn.CloseWithError(0, "normal closure")
	})
	return err
}

func (c *QUICStreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *QUICStreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *QUICStreamConn) SetDeadline(t time.Time) error {
	return c.stream.SetDeadline(t)
}

func (c *QUICStreamConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *QUICStreamConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}
