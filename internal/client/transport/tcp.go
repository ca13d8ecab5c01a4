package transport

import (
	"context"
	"net"
	"time"
)

// DefaultKeepAlive TCP 保活默认间隔
const DefaultKeepAlive = 30 * time.Second

func init() {
	RegisterProtocol("tcp", 30, DialTCP) // 优先级 30（中等）
}

// DialTCP 建立 TCP 连接并开启保活
func DialTCP(ctx context.Context, address string, opts *DialOptions) (net.Conn, error) {
	network := opts.Network
	if network == "" {
		network = "tcp"
	}
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: keepAlive,
	}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(keepAlive)
		_ = tcpConn.SetNoDelay(true)
	}

	return conn, nil
}
