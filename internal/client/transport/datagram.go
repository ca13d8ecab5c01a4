package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/core/dispose"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/core/safe"
	"syncio-client/internal/packet"
	"syncio-client/internal/packet/packager"
)

// IdentityPrefixSize 上行数据报前缀的身份标识长度
const IdentityPrefixSize = 16

// 连续读错误时的退避区间
const (
	readErrorBackoffMin = 10 * time.Millisecond
	readErrorBackoffMax = time.Second
)

// DatagramConfig 数据报通道配置
type DatagramConfig struct {
	Logger   corelog.Logger
	Packager *packager.Packager
	Identity uuid.UUID
	// RateLimit 每秒最多发送的数据报数量，0 表示不限；超出部分直接丢弃
	RateLimit float64

	// OnPacket 在接收 goroutine 上依次调用，不得阻塞
	OnPacket func(packet.Packet)
	// OnDropped 在数据报因速率限制被丢弃时于发送方 goroutine 上调用
	OnDropped func()
}

// DatagramConn 不可靠数据报通道
// 上行格式为 [16字节身份][数据包]，下行为裸数据包
type DatagramConn struct {
	dispose.Dispose

	conn     net.Conn
	packager *packager.Packager
	identity uuid.UUID
	limiter  *rate.Limiter
	logger   corelog.Logger
	onPacket func(packet.Packet)
	onDrop   func()

	startOnce sync.Once
	wg        safe.WaitGroup
}

// DialDatagram 创建连接到 address 的 UDP 套接字
func DialDatagram(ctx context.Context, network, address string, config *DatagramConfig) (*DatagramConn, error) {
	if config == nil {
		config = &DatagramConfig{}
	}
	if network == "" {
		network = "udp"
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeConnectionError, "failed to open udp socket to %s", address)
	}
	return NewDatagramConn(ctx, conn, config), nil
}

// NewDatagramConn 包装已连接的数据报套接字，调用 Start 之前不会接收
func NewDatagramConn(parent context.Context, conn net.Conn, config *DatagramConfig) *DatagramConn {
	pkgr := config.Packager
	if pkgr == nil {
		pkgr = packager.New(nil)
	}
	c := &DatagramConn{
		conn:     conn,
		packager: pkgr,
		identity: config.Identity,
		logger:   corelog.OrDefault(config.Logger),
		onPacket: config.OnPacket,
		onDrop:   config.OnDropped,
	}
	if config.RateLimit > 0 {
		burst := int(config.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	c.SetCtx(parent, conn.Close)
	return c
}

// Start 启动接收 goroutine，重复调用无效
func (c *DatagramConn) Start() {
	c.startOnce.Do(func() {
		c.wg.Go("datagram-receive", c.receiveLoop, func(any) { _ = c.Close() })
		// 父 context 结束时解除阻塞的 Read
		stop := context.AfterFunc(c.Ctx(), func() { _ = c.Close() })
		c.AddCleanHandler(func() error {
			stop()
			return nil
		})
	})
}

// Identity 上行数据报携带的身份
func (c *DatagramConn) Identity() uuid.UUID {
	return c.identity
}

// LocalAddr 本地地址
func (c *DatagramConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send 发送一个数据包；超出速率限制时静默丢弃
func (c *DatagramConn) Send(p packet.Packet) error {
	data, err := c.packager.Serialize(p)
	if err != nil {
		return err
	}
	return c.write(data)
}

// SendArray 发送一个对象数组；超出速率限制时静默丢弃
func (c *DatagramConn) SendArray(values []any) error {
	data, err := c.packager.SerializeArray(values...)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *DatagramConn) write(data []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	if len(data)+IdentityPrefixSize > packager.MaxDatagramSize {
		return coreerrors.Newf(coreerrors.CodePacketTooLarge, "datagram length %d exceeds maximum %d", len(data)+IdentityPrefixSize, packager.MaxDatagramSize)
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Debugf("Transport: udp rate limit exceeded, dropping %d bytes", len(data))
		if c.onDrop != nil {
			c.onDrop()
		}
		return nil
	}

	buf := make([]byte, IdentityPrefixSize+len(data))
	copy(buf, c.identity[:])
	copy(buf[IdentityPrefixSize:], data)
	if _, err := c.conn.Write(buf); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeNetworkError, "failed to write datagram")
	}
	return nil
}

// Close 关闭套接字，可在 OnPacket 回调内调用
func (c *DatagramConn) Close() error {
	return c.Dispose.Close()
}

// Wait 等待接收 goroutine 退出
func (c *DatagramConn) Wait() {
	c.wg.Wait()
}

func (c *DatagramConn) receiveLoop() {
	buf := make([]byte, packager.MaxDatagramSize)
	backoff := time.Duration(0)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if c.IsClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			// 例如 ICMP 端口不可达，套接字仍然可用
			backoff = nextReadBackoff(backoff)
			c.logger.Debugf("Transport: udp read error, retrying in %v: %v", backoff, err)
			if !c.sleep(backoff) {
				return
			}
			continue
		}
		backoff = 0
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		pkt, err := c.packager.Deserialize(data)
		if err != nil {
			c.logger.Warnf("Transport: dropping undecodable datagram: %v", err)
			continue
		}
		if c.onPacket != nil {
			c.onPacket(pkt)
		}
	}
}

func nextReadBackoff(current time.Duration) time.Duration {
	if current < readErrorBackoffMin {
		return readErrorBackoffMin
	}
	if current*2 > readErrorBackoffMax {
		return readErrorBackoffMax
	}
	return current * 2
}

// sleep 等待 d，连接关闭时提前返回 false
func (c *DatagramConn) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.Ctx().Done():
		return false
	}
}
