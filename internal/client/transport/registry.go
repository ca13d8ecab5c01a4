// Package transport 会话使用的流通道与数据报通道
// 流通道协议通过注册表选择，可用 build tags 排除 kcp/quic/websocket
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sort"
	"sync"
	"time"

	coreerrors "syncio-client/internal/core/errors"
)

// DialOptions 拨号参数
type DialOptions struct {
	Network   string        // tcp / tcp4 / tcp6，仅对基于 IP 的协议生效
	Timeout   time.Duration // 同步连接的超时时间，0 表示只受 ctx 约束
	KeepAlive time.Duration // 保活间隔，0 表示协议默认值
	TLS       *tls.Config   // quic 必需，websocket 在 wss 时使用
	Path      string        // websocket 路径
}

// Dialer 是协议拨号器的接口
type Dialer func(ctx context.Context, address string, opts *DialOptions) (net.Conn, error)

// ProtocolInfo 协议信息
type ProtocolInfo struct {
	Name     string // 协议名称: tcp, websocket, quic, kcp
	Priority int    // 优先级（数字越小优先级越高）
	Dialer   Dialer // 拨号函数
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*ProtocolInfo)
)

// RegisterProtocol 注册协议
func RegisterProtocol(name string, priority int, dialer Dialer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = &ProtocolInfo{
		Name:     name,
		Priority: priority,
		Dialer:   dialer,
	}
}

// GetProtocol 获取协议信息
func GetProtocol(name string) (*ProtocolInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[name]
	return info, ok
}

// GetRegisteredProtocols 获取所有已注册的协议（按优先级排序）
func GetRegisteredProtocols() []*ProtocolInfo {
	registryMu.RLock()
	protocols := make([]*ProtocolInfo, 0, len(registry))
	for _, info := range registry {
		protocols = append(protocols, info)
	}
	registryMu.RUnlock()

	sort.Slice(protocols, func(i, j int) bool {
		if protocols[i].Priority != protocols[j].Priority {
			return protocols[i].Priority < protocols[j].Priority
		}
		return protocols[i].Name < protocols[j].Name
	})
	return protocols
}

// IsProtocolAvailable 检查协议是否可用
func IsProtocolAvailable(name string) bool {
	_, ok := GetProtocol(name)
	return ok
}

// GetAvailableProtocolNames 获取所有可用协议名称
func GetAvailableProtocolNames() []string {
	protocols := GetRegisteredProtocols()
	names := make([]string, len(protocols))
	for i, p := range protocols {
		names[i] = p.Name
	}
	return names
}

// Dial 使用指定协议建立连接
// opts.Timeout 大于 0 时整个连接过程受其约束
func Dial(ctx context.Context, protocol, address string, opts *DialOptions) (net.Conn, error) {
	info, ok := GetProtocol(protocol)
	if !ok {
		return nil, coreerrors.Newf(coreerrors.CodeProtocolError, "protocol %q is not available (not compiled in)", protocol)
	}
	if opts == nil {
		opts = &DialOptions{}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return info.Dialer(ctx, address, opts)
}

// DatagramNetwork 返回与流通道地址族对应的 UDP 网络名
func DatagramNetwork(streamNetwork string) string {
	switch streamNetwork {
	case "tcp4":
		return "udp4"
	case "tcp6":
		return "udp6"
	default:
		return "udp"
	}
}
