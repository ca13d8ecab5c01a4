package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/core/dispose"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/core/safe"
	"syncio-client/internal/packet"
	"syncio-client/internal/packet/packager"
)

// DefaultSendQueueSize 默认发送队列长度
const DefaultSendQueueSize = 256

// ErrConnectionClosed 连接已关闭
var ErrConnectionClosed = coreerrors.New(coreerrors.CodeStreamClosed, "connection closed")

// StreamConfig 流通道配置
type StreamConfig struct {
	Logger    corelog.Logger
	Packager  *packager.Packager
	QueueSize int

	// OnPacket 在读 goroutine 上依次调用，不得阻塞
	OnPacket func(packet.Packet)
	// OnClosed 连接结束时调用且仅调用一次；主动关闭或对端正常关闭时 err 为 nil
	OnClosed func(err error)
}

type outbound struct {
	data []byte
	done func(error)
}

// StreamConn 可靠流通道
// 读 goroutine 拆帧并解码后交给 OnPacket，写 goroutine 按入队顺序写出
type StreamConn struct {
	dispose.Dispose

	conn     net.Conn
	packager *packager.Packager
	queue    chan outbound
	logger   corelog.Logger

	onPacket func(packet.Packet)
	onClosed func(error)

	startOnce sync.Once
	closeOnce sync.Once
	wg        safe.WaitGroup
}

// NewStreamConn 包装已建立的连接，调用 Start 之前不会读写
func NewStreamConn(parent context.Context, conn net.Conn, config *StreamConfig) *StreamConn {
	if config == nil {
		config = &StreamConfig{}
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	pkgr := config.Packager
	if pkgr == nil {
		pkgr = packager.New(nil)
	}

	c := &StreamConn{
		conn:     conn,
		packager: pkgr,
		queue:    make(chan outbound, queueSize),
		logger:   corelog.OrDefault(config.Logger),
		onPacket: config.OnPacket,
		onClosed: config.OnClosed,
	}
	c.SetCtx(parent, conn.Close)
	return c
}

// Start 启动读写 goroutine，重复调用无效
func (c *StreamConn) Start() {
	c.startOnce.Do(func() {
		c.wg.Go("stream-read", c.readLoop, c.loopPanicked)
		c.wg.Go("stream-write", c.writeLoop, c.loopPanicked)
	})
}

// Packager 返回该连接使用的编解码器
func (c *StreamConn) Packager() *packager.Packager {
	return c.packager
}

// RemoteAddr 对端地址
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send 序列化并入队一个数据包，done 在写出或失败后于写 goroutine 上调用
func (c *StreamConn) Send(p packet.Packet, done func(error)) error {
	data, err := c.packager.Serialize(p)
	if err != nil {
		return c.reject(err, done)
	}
	return c.enqueue(data, done)
}

// SendArray 序列化并入队一个对象数组
func (c *StreamConn) SendArray(values []any, done func(error)) error {
	data, err := c.packager.SerializeArray(values...)
	if err != nil {
		return c.reject(err, done)
	}
	return c.enqueue(data, done)
}

func (c *StreamConn) reject(err error, done func(error)) error {
	if done != nil {
		done(err)
	}
	return err
}

func (c *StreamConn) enqueue(data []byte, done func(error)) error {
	if c.IsClosed() {
		return c.reject(ErrConnectionClosed, done)
	}
	select {
	case c.queue <- outbound{data: data, done: done}:
		// 写循环可能已退出并完成排空
		if c.Ctx().Err() != nil {
			c.drainQueue()
		}
		return nil
	case <-c.Ctx().Done():
		return c.reject(ErrConnectionClosed, done)
	}
}

// Close 主动关闭连接，OnClosed 收到 nil
func (c *StreamConn) Close() error {
	c.shutdown(nil)
	return nil
}

// Wait 等待读写 goroutine 全部退出
func (c *StreamConn) Wait() {
	c.wg.Wait()
}

func (c *StreamConn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if err := c.Dispose.Close(); err != nil {
			c.logger.Debugf("Transport: close stream %s: %v", c.conn.RemoteAddr(), err)
		}
		if c.onClosed != nil {
			c.onClosed(cause)
		}
	})
}

func (c *StreamConn) loopPanicked(recovered any) {
	c.shutdown(coreerrors.Newf(coreerrors.CodeInternal, "stream loop panic: %v", recovered))
}

func (c *StreamConn) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		data, err := packager.ReadFrame(reader, packager.MaxFrameSize)
		if err != nil {
			c.shutdown(c.classifyReadError(err))
			return
		}

		pkt, err := c.packager.Deserialize(data)
		if err != nil {
			// 帧边界完好，丢弃该包继续读取
			c.logger.Warnf("Transport: dropping undecodable packet from %s: %v", c.conn.RemoteAddr(), err)
			continue
		}
		if c.onPacket != nil {
			c.onPacket(pkt)
		}
	}
}

func (c *StreamConn) classifyReadError(err error) error {
	if c.IsClosed() || errors.Is(err, io.EOF) {
		return nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return coreerrors.Wrap(err, coreerrors.CodeStreamClosed, "connection closed mid-frame")
	}
	var coreErr *coreerrors.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return coreerrors.Wrap(err, coreerrors.CodeNetworkError, "stream read failed")
}

func (c *StreamConn) writeLoop() {
	defer c.drainQueue()

	ctx := c.Ctx()
	for {
		select {
		case <-ctx.Done():
			// 父 context 结束时读循环仍阻塞在 Read 上，由此关闭连接
			c.shutdown(nil)
			return
		case item := <-c.queue:
			err := packager.WriteFrame(c.conn, item.data)
			if item.done != nil {
				item.done(err)
			}
			if err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *StreamConn) drainQueue() {
	for {
		select {
		case item := <-c.queue:
			if item.done != nil {
				item.done(ErrConnectionClosed)
			}
		default:
			return
		}
	}
}
