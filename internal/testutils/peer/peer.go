// Package peer 提供测试用的协作服务端
// 在本地同时监听流通道和 UDP，完成握手、UDP 确认与远程调用应答，并记录收到的业务数据包
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"syncio-client/internal/client/transport"
	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/encryption"
	"syncio-client/internal/packet"
	"syncio-client/internal/packet/packager"
)

// HandshakeMode 对新连接的握手策略
type HandshakeMode int

const (
	HandshakeAccept HandshakeMode = iota // 分配新身份并回复成功
	HandshakeReject                      // 回复失败
	HandshakeSilent                      // 不回复
)

// UDPMode 对 UDP 确认请求的应答策略
type UDPMode int

const (
	UDPConfirmOverDatagram UDPMode = iota // 通过 UDP 回复成功
	UDPConfirmOverStream                  // 通过流通道回复成功
	UDPReject                             // 通过 UDP 回复失败
	UDPSilent                             // 不回复
)

// Function 远程函数实现，返回值被编码为 JSON
type Function func(args []json.RawMessage) (any, error)

// Config 测试服务端配置
type Config struct {
	Logger     corelog.Logger
	Transform  encryption.Transform
	Handshake  HandshakeMode
	UDP        UDPMode
	Functions  map[string]Function
	BufferSize int // Received 通道容量，默认 256
}

// Inbound 收到的业务数据包
type Inbound struct {
	Identity uuid.UUID
	OverUDP  bool
	Packet   packet.Packet
}

type peerConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	identity uuid.UUID
}

// Peer 测试服务端
type Peer struct {
	config   Config
	logger   corelog.Logger
	packager *packager.Packager

	listener net.Listener
	udp      net.PacketConn

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.Mutex
	conns    map[*peerConn]struct{}
	udpAddrs map[uuid.UUID]net.Addr
	accepted int
	udpHello int

	received chan Inbound
}

// Start 启动测试服务端
func Start(config *Config) (*Peer, error) {
	if config == nil {
		config = &Config{}
	}
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "peer: failed to listen tcp")
	}
	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		_ = listener.Close()
		return nil, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "peer: failed to listen udp")
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &Peer{
		config:   *config,
		logger:   corelog.OrDefault(config.Logger),
		packager: packager.New(config.Transform),
		listener: listener,
		udp:      udp,
		ctx:      gctx,
		cancel:   cancel,
		group:    group,
		conns:    make(map[*peerConn]struct{}),
		udpAddrs: make(map[uuid.UUID]net.Addr),
		received: make(chan Inbound, bufferSize),
	}

	group.Go(p.acceptLoop)
	group.Go(p.udpLoop)
	group.Go(func() error {
		<-gctx.Done()
		_ = listener.Close()
		_ = udp.Close()
		p.DropConnections()
		return nil
	})
	return p, nil
}

// Host 监听地址
func (p *Peer) Host() string {
	return "127.0.0.1"
}

// Port 流通道端口
func (p *Peer) Port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

// UDPPort UDP 端口
func (p *Peer) UDPPort() int {
	return p.udp.LocalAddr().(*net.UDPAddr).Port
}

// Address 流通道地址
func (p *Peer) Address() string {
	return net.JoinHostPort(p.Host(), strconv.Itoa(p.Port()))
}

// Received 收到的业务数据包
func (p *Peer) Received() <-chan Inbound {
	return p.received
}

// Accepted 已接受的连接数
func (p *Peer) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// ActiveConnections 当前存活的连接数
func (p *Peer) ActiveConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// UDPHandshakes 收到的 UDP 确认请求数
func (p *Peer) UDPHandshakes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.udpHello
}

// SetUDPMode 修改 UDP 应答策略
func (p *Peer) SetUDPMode(mode UDPMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.UDP = mode
}

// Broadcast 通过流通道向所有连接发送数据包
func (p *Peer) Broadcast(pkt packet.Packet) error {
	data, err := p.packager.Serialize(pkt)
	if err != nil {
		return err
	}
	for _, pc := range p.snapshot() {
		if err := pc.write(data); err != nil {
			return err
		}
	}
	return nil
}

// SendUDP 向 identity 最近使用的 UDP 地址发送数据包
func (p *Peer) SendUDP(identity uuid.UUID, pkt packet.Packet) error {
	p.mu.Lock()
	addr, ok := p.udpAddrs[identity]
	p.mu.Unlock()
	if !ok {
		return coreerrors.Newf(coreerrors.CodeNotFound, "peer: no udp address for %s", identity)
	}
	data, err := p.packager.Serialize(pkt)
	if err != nil {
		return err
	}
	_, err = p.udp.WriteTo(data, addr)
	return err
}

// DropConnections 从服务端关闭所有流通道连接
func (p *Peer) DropConnections() {
	for _, pc := range p.snapshot() {
		_ = pc.conn.Close()
	}
}

// Close 停止服务端并等待所有 goroutine 退出
func (p *Peer) Close() error {
	p.cancel()
	return p.group.Wait()
}

func (p *Peer) snapshot() []*peerConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns := make([]*peerConn, 0, len(p.conns))
	for pc := range p.conns {
		conns = append(conns, pc)
	}
	return conns
}

func (p *Peer) acceptLoop() error {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		pc := &peerConn{conn: conn}
		if p.config.Handshake == HandshakeAccept {
			pc.identity = uuid.New()
		}
		p.mu.Lock()
		p.accepted++
		p.conns[pc] = struct{}{}
		p.mu.Unlock()

		p.group.Go(func() error {
			p.serve(pc)
			return nil
		})
	}
}

func (p *Peer) serve(pc *peerConn) {
	defer func() {
		_ = pc.conn.Close()
		p.mu.Lock()
		delete(p.conns, pc)
		p.mu.Unlock()
	}()

	switch p.config.Handshake {
	case HandshakeAccept:
		p.reply(pc, &packet.HandshakeResult{Success: true, Identity: pc.identity})
	case HandshakeReject:
		p.reply(pc, &packet.HandshakeResult{Success: false})
	}

	for {
		data, err := packager.ReadFrame(pc.conn, packager.MaxFrameSize)
		if err != nil {
			return
		}
		pkt, err := p.packager.Deserialize(data)
		if err != nil {
			p.logger.Warnf("Peer: dropping undecodable packet: %v", err)
			continue
		}

		if req, ok := pkt.(*packet.RemoteCallRequest); ok {
			p.reply(pc, p.invoke(req))
			continue
		}
		p.record(Inbound{Identity: pc.identity, Packet: pkt})
	}
}

func (p *Peer) invoke(req *packet.RemoteCallRequest) *packet.RemoteCallResponse {
	fn, ok := p.config.Functions[req.Name]
	if !ok {
		return &packet.RemoteCallResponse{CallID: req.CallID, Status: packet.RemoteCallNotFound}
	}
	result, err := fn(req.Args)
	if err != nil {
		return &packet.RemoteCallResponse{CallID: req.CallID, Status: packet.RemoteCallException, Error: err.Error()}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return &packet.RemoteCallResponse{CallID: req.CallID, Status: packet.RemoteCallException, Error: err.Error()}
	}
	return &packet.RemoteCallResponse{CallID: req.CallID, Status: packet.RemoteCallSuccess, Result: raw}
}

func (p *Peer) udpLoop() error {
	buf := make([]byte, packager.MaxDatagramSize)
	for {
		n, addr, err := p.udp.ReadFrom(buf)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if n <= transport.IdentityPrefixSize {
			continue
		}

		identity, err := uuid.FromBytes(buf[:transport.IdentityPrefixSize])
		if err != nil {
			continue
		}
		data := make([]byte, n-transport.IdentityPrefixSize)
		copy(data, buf[transport.IdentityPrefixSize:n])
		pkt, err := p.packager.Deserialize(data)
		if err != nil {
			p.logger.Warnf("Peer: dropping undecodable datagram: %v", err)
			continue
		}

		p.mu.Lock()
		p.udpAddrs[identity] = addr
		mode := p.config.UDP
		if _, ok := pkt.(*packet.UDPHandshakeRequest); ok {
			p.udpHello++
		}
		p.mu.Unlock()

		if _, ok := pkt.(*packet.UDPHandshakeRequest); ok {
			p.answerUDPHandshake(identity, mode)
			continue
		}
		p.record(Inbound{Identity: identity, OverUDP: true, Packet: pkt})
	}
}

func (p *Peer) answerUDPHandshake(identity uuid.UUID, mode UDPMode) {
	switch mode {
	case UDPConfirmOverDatagram:
		_ = p.SendUDP(identity, &packet.UDPHandshakeResponse{Success: true})
	case UDPReject:
		_ = p.SendUDP(identity, &packet.UDPHandshakeResponse{Success: false})
	case UDPConfirmOverStream:
		for _, pc := range p.snapshot() {
			if pc.identity == identity {
				p.reply(pc, &packet.UDPHandshakeResponse{Success: true})
			}
		}
	}
}

func (p *Peer) reply(pc *peerConn, pkt packet.Packet) {
	data, err := p.packager.Serialize(pkt)
	if err != nil {
		p.logger.Errorf("Peer: failed to serialize %s: %v", pkt.PacketName(), err)
		return
	}
	if err := pc.write(data); err != nil {
		p.logger.Debugf("Peer: failed to write %s: %v", pkt.PacketName(), err)
	}
}

func (p *Peer) record(in Inbound) {
	select {
	case p.received <- in:
	default:
		p.logger.Warnf("Peer: received buffer full, dropping %s", in.Packet.PacketName())
	}
}

func (pc *peerConn) write(data []byte) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	return packager.WriteFrame(pc.conn, data)
}
