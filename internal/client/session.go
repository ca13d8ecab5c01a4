// Package client 实现客户端会话层
//
// Session 持有到单个服务器的一条流通道连接和至多一条 UDP 旁路通道，
// 负责连接生命周期、身份分配握手、UDP 升级协议、数据包分发以及远程调用关联。
// 处理器与通知在接收 goroutine 上同步执行，不得阻塞。
package client

import (
	"context"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"syncio-client/internal/client/transport"
	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/core/dispose"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/core/metrics"
	"syncio-client/internal/encryption"
	"syncio-client/internal/packet"
	"syncio-client/internal/packet/packager"
	"syncio-client/internal/protocol/callback"
	"syncio-client/internal/protocol/remote"
)

var (
	tcpLabels = metrics.ChannelLabels("tcp")
	udpLabels = metrics.ChannelLabels("udp")
)

// 会话层错误
var (
	ErrNotConnected      = coreerrors.ErrNotConnected
	ErrHandshakeRequired = coreerrors.New(coreerrors.CodeInvalidState, "handshake has not succeeded")
	ErrUDPNotOpened      = coreerrors.New(coreerrors.CodeInvalidState, "udp side channel has not been opened")
	ErrSessionClosed     = coreerrors.New(coreerrors.CodeInvalidState, "session is closed")
	ErrReservedPacket    = callback.ErrReservedPacket
	ErrConnectionClosed  = transport.ErrConnectionClosed
)

type handshakeState int

const (
	handshakeAwaiting handshakeState = iota
	handshakeSucceeded
	handshakeFailed
)

type udpState int

const (
	udpNotRequested udpState = iota
	udpAwaiting
	udpConfirmed
	udpRejected
)

// connection 一次 Connect 建立的连接及其附属状态，字段由 Session.mu 保护
type connection struct {
	host     string
	port     int
	stream   *transport.StreamConn
	packager *packager.Packager

	identity       uuid.UUID
	handshake      handshakeState
	handshakePhase *phase

	udp      *transport.DatagramConn
	udpState udpState
	udpPhase *phase
	hasUDP   bool

	closed bool
}

// Option 会话选项
type Option func(*Session)

// WithLogger 设置日志器
func WithLogger(logger corelog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics 设置指标收集器，未设置时每个会话使用独立的内存实现
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithContext 设置会话的父 context，结束时会话被关闭且不再接受新连接
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.parent = ctx
	}
}

// Session 客户端会话
type Session struct {
	dispose.Dispose

	config  *Config
	logger  corelog.Logger
	metrics metrics.Metrics
	parent  context.Context

	// connectMu 串行化 Connect / Disconnect
	connectMu sync.Mutex

	mu        sync.Mutex
	conn      *connection
	transform encryption.Transform

	callbacks *callback.Registry[*Session]
	remotes   *remote.Registry
	internal  map[string]func(*connection, packet.Packet)

	subscribersMu         sync.RWMutex
	handshakeSubscribers  []func(*Session, uuid.UUID, bool)
	disconnectSubscribers []func(*Session, error)
}

// New 创建会话，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		copied := *cfg
		cfg = &copied
		cfg.applyDefaults()
	}

	s := &Session{
		config: cfg,
		parent: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = corelog.OrDefault(s.logger)
	if s.parent == nil {
		s.parent = context.Background()
	}
	s.SetCtx(s.parent, nil)
	if s.metrics == nil {
		m := metrics.NewMemoryMetrics(s.Ctx())
		s.metrics = m
		s.AddCleanHandler(m.Close)
	}

	if transform, err := cfg.Encryption.Transform(); err != nil {
		s.logger.Errorf("Session: ignoring invalid encryption config: %v", err)
	} else {
		s.transform = transform
	}

	s.callbacks = callback.NewRegistry[*Session](&callback.Config{
		Logger: s.logger,
		Reserved: []packet.Packet{
			&packet.HandshakeResult{},
			&packet.UDPHandshakeResponse{},
			&packet.RemoteCallResponse{},
		},
	})
	s.remotes = remote.NewRegistry(remote.InvokerFunc(s.invokeRemote), &remote.Config{
		Logger:      s.logger,
		CallTimeout: cfg.RemoteCallTimeout,
	})
	s.internal = map[string]func(*connection, packet.Packet){
		packet.HandshakeResultName: func(c *connection, p packet.Packet) {
			s.completeHandshake(c, p.(*packet.HandshakeResult))
		},
		packet.UDPHandshakeResponseName: func(c *connection, p packet.Packet) {
			s.confirmUDP(c, p.(*packet.UDPHandshakeResponse))
		},
		packet.RemoteCallResponseName: func(_ *connection, p packet.Packet) {
			s.remotes.Raise(p.(*packet.RemoteCallResponse))
		},
	}

	// 父 context 结束时关闭会话
	stop := context.AfterFunc(s.parent, func() {
		s.logger.Infof("Session: parent context done, closing session")
		_ = s.Close()
	})
	s.AddCleanHandler(func() error {
		stop()
		return nil
	})
	return s
}

// Metrics 会话指标
func (s *Session) Metrics() metrics.Metrics {
	return s.metrics
}

// Config 返回会话使用的配置副本
func (s *Session) Config() Config {
	return *s.config
}

// Connect 连接到 host:port 并进入等待握手状态
// 已有连接会先被断开（通知收到 nil），失败时不安装任何连接
// 旧连接的断开通知在 Connect 释放内部锁之后触发
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	if s.closing() {
		return ErrSessionClosed
	}
	if host == "" {
		return coreerrors.New(coreerrors.CodeInvalidParam, "host is empty")
	}
	if port <= 0 || port > 65535 {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "invalid port %d", port)
	}

	var notify func()
	s.connectMu.Lock()
	defer func() {
		s.connectMu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	opts, err := s.dialOptions()
	if err != nil {
		return err
	}

	s.logger.Infof("Session: connecting to %s via %s", address, s.config.Server.Protocol)
	raw, err := transport.Dial(ctx, s.config.Server.Protocol, address, opts)
	if err != nil {
		s.logger.Warnf("Session: failed to connect to %s: %v", address, err)
		return coreerrors.Wrapf(err, coreerrors.CodeConnectionError, "failed to connect to %s", address)
	}

	// 先断开旧连接，再安装新连接
	notify = s.disconnectLocked()

	s.mu.Lock()
	pk := packager.New(s.transform)
	s.mu.Unlock()

	c := &connection{
		host:           host,
		port:           port,
		packager:       pk,
		handshake:      handshakeAwaiting,
		handshakePhase: newPhase(),
	}
	c.stream = transport.NewStreamConn(s.Ctx(), raw, &transport.StreamConfig{
		Logger:    s.logger,
		Packager:  pk,
		QueueSize: s.config.SendQueueSize,
		OnPacket: func(p packet.Packet) {
			metrics.Inc(s.metrics, metrics.PacketsReceived, tcpLabels)
			s.dispatch(c, p)
		},
		OnClosed: func(err error) {
			s.connectionClosed(c, err)
		},
	})

	s.mu.Lock()
	if s.closing() {
		s.mu.Unlock()
		_ = raw.Close()
		return ErrSessionClosed
	}
	s.conn = c
	s.mu.Unlock()

	// 握手阶段在读循环启动前已就绪
	c.stream.Start()
	s.logger.Infof("Session: connected to %s, awaiting handshake", address)
	return nil
}

// closing 会话已关闭或父 context 已结束
func (s *Session) closing() bool {
	return s.IsClosed() || s.Ctx().Err() != nil
}

func (s *Session) dialOptions() (*transport.DialOptions, error) {
	tlsConf, err := s.config.TLS.Build()
	if err != nil {
		return nil, err
	}
	return &transport.DialOptions{
		Network:   s.config.Server.AddressFamily,
		Timeout:   s.config.Server.ConnectTimeout,
		KeepAlive: s.config.Server.KeepAlive,
		TLS:       tlsConf,
		Path:      s.config.Server.WebSocketPath,
	}, nil
}

// Disconnect 断开当前连接，断开通知收到 nil
// 通知在释放内部锁之后触发，处理器内可以再次 Connect / Disconnect
func (s *Session) Disconnect() {
	s.connectMu.Lock()
	notify := s.disconnectLocked()
	s.connectMu.Unlock()
	if notify != nil {
		notify()
	}
}

// disconnectLocked 拆除当前连接，返回待触发的断开通知，调用方须持有 connectMu
func (s *Session) disconnectLocked() func() {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	s.logger.Infof("Session: disconnecting from %s", net.JoinHostPort(c.host, strconv.Itoa(c.port)))
	if !s.teardown(c, nil) {
		return nil
	}
	_ = c.stream.Close()
	return func() { s.notifyDisconnected(nil) }
}

// Close 断开连接并释放会话，之后不能再 Connect
func (s *Session) Close() error {
	s.Disconnect()
	return s.Dispose.Close()
}

// connectionClosed 传输层关闭回调，拆除连接并通知
func (s *Session) connectionClosed(c *connection, cause error) {
	if s.teardown(c, cause) {
		s.notifyDisconnected(cause)
	}
}

// teardown 拆除连接，每个连接只执行一次，返回本次调用是否执行了拆除
func (s *Session) teardown(c *connection, cause error) bool {
	s.mu.Lock()
	if c.closed {
		s.mu.Unlock()
		return false
	}
	c.closed = true
	wasActive := s.conn == c
	if wasActive {
		s.conn = nil
	}
	c.handshakePhase.resolve(PhaseAborted)
	if c.udpPhase != nil {
		c.udpPhase.resolve(PhaseAborted)
	}
	udp := c.udp
	c.udp = nil
	c.hasUDP = false
	s.mu.Unlock()

	if udp != nil {
		_ = udp.Close()
	}
	if wasActive {
		if n := s.remotes.FailAll(ErrConnectionClosed); n > 0 {
			metrics.Add(s.metrics, metrics.RemoteCallsFailed, float64(n), nil)
			s.logger.Debugf("Session: failed %d pending remote calls on disconnect", n)
		}
		metrics.Set(s.metrics, metrics.ConnectedGauge, 0, nil)
	}

	reason := "closed"
	if cause != nil {
		reason = "error"
	}
	metrics.Inc(s.metrics, metrics.Disconnects, map[string]string{"reason": reason})

	if cause != nil {
		s.logger.Warnf("Session: connection to %s lost: %v", c.host, cause)
	} else {
		s.logger.Infof("Session: connection to %s closed", c.host)
	}
	return true
}

// activeConnection 返回握手成功的当前连接
func (s *Session) activeConnection() *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.conn.identity == uuid.Nil {
		return nil
	}
	return s.conn
}

// Identity 服务器分配的身份，未连接时为 uuid.Nil
func (s *Session) Identity() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return uuid.Nil
	}
	return s.conn.identity
}

// Connected 握手成功且连接仍然存在
func (s *Session) Connected() bool {
	return s.Identity() != uuid.Nil
}

// HasUDP UDP 旁路通道当前是否被对端确认
func (s *Session) HasUDP() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.hasUDP
}

// OnHandshakeCompleted 订阅握手完成通知，每个连接至多触发一次
func (s *Session) OnHandshakeCompleted(fn func(s *Session, identity uuid.UUID, success bool)) {
	if fn == nil {
		return
	}
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	s.handshakeSubscribers = append(s.handshakeSubscribers, fn)
}

// OnDisconnected 订阅断开通知，主动断开或对端正常关闭时 err 为 nil
func (s *Session) OnDisconnected(fn func(s *Session, err error)) {
	if fn == nil {
		return
	}
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	s.disconnectSubscribers = append(s.disconnectSubscribers, fn)
}

func (s *Session) notifyHandshake(identity uuid.UUID, success bool) {
	s.subscribersMu.RLock()
	subscribers := slices.Clone(s.handshakeSubscribers)
	s.subscribersMu.RUnlock()

	for _, fn := range subscribers {
		fn(s, identity, success)
	}
}

func (s *Session) notifyDisconnected(err error) {
	s.subscribersMu.RLock()
	subscribers := slices.Clone(s.disconnectSubscribers)
	s.subscribersMu.RUnlock()

	for _, fn := range subscribers {
		fn(s, err)
	}
}
