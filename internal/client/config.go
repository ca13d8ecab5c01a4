package client

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"syncio-client/internal/client/transport"
	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/encryption"
)

// 默认值
const (
	DefaultPort             = 7000
	DefaultProtocol         = "tcp"
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultConfigFileName   = "syncio-client.yaml"
)

// Config 客户端会话配置
type Config struct {
	Server ServerConfig `yaml:"server"`

	// TLS 配置（QUIC 与 wss 使用）
	TLS TLSConfig `yaml:"tls"`

	// HandshakeTimeout WaitForHandshake / WaitForUDP 的等待上限
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// SendQueueSize 流通道发送队列长度
	SendQueueSize int `yaml:"send_queue_size"`

	// RemoteCallTimeout 远程调用在 ctx 没有截止时间时的默认超时，0 表示不限
	RemoteCallTimeout time.Duration `yaml:"remote_call_timeout"`

	UDP        UDPConfig        `yaml:"udp"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Log        corelog.Config   `yaml:"log"`
}

// ServerConfig 服务器连接配置
type ServerConfig struct {
	Address        string        `yaml:"address"`         // 主机名或 IP
	Port           int           `yaml:"port"`            // 流通道端口
	Protocol       string        `yaml:"protocol"`        // tcp/kcp/quic/websocket
	AddressFamily  string        `yaml:"address_family"`  // tcp/tcp4/tcp6
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // 同步连接超时
	KeepAlive      time.Duration `yaml:"keep_alive"`      // 保活间隔
	WebSocketPath  string        `yaml:"websocket_path"`  // websocket 路径
}

// TLSConfig TLS 配置
type TLSConfig struct {
	// 是否跳过证书验证（默认 true，适用于自签名证书）
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CA 证书文件路径（可选，用于验证服务器证书）
	CACertFile string `yaml:"ca_cert_file,omitempty"`

	// 服务器名称（用于证书验证，可选）
	ServerName string `yaml:"server_name,omitempty"`
}

// UDPConfig 数据报通道配置
type UDPConfig struct {
	Port      int     `yaml:"port"`       // 0 表示与 server.port 相同
	RateLimit float64 `yaml:"rate_limit"` // 每秒数据报数，0 表示不限
}

// EncryptionConfig 加密配置
type EncryptionConfig struct {
	Method string `yaml:"method"` // 空 / aes-256-gcm / chacha20-poly1305
	Key    string `yaml:"key"`    // base64 编码的 32 字节密钥
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.TLS.InsecureSkipVerify = true
	cfg.applyDefaults()
	return cfg
}

// applyDefaults 填充未设置的字段
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Protocol == "" {
		c.Server.Protocol = DefaultProtocol
	}
	c.Server.Protocol = strings.ToLower(c.Server.Protocol)
	if c.Server.AddressFamily == "" {
		c.Server.AddressFamily = "tcp"
	}
	if c.Server.ConnectTimeout <= 0 {
		c.Server.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Server.KeepAlive <= 0 {
		c.Server.KeepAlive = transport.DefaultKeepAlive
	}
	if c.Server.WebSocketPath == "" {
		c.Server.WebSocketPath = transport.DefaultWebSocketPath
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = transport.DefaultSendQueueSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if !transport.IsProtocolAvailable(c.Server.Protocol) {
		return coreerrors.Newf(coreerrors.CodeConfigError, "unsupported server protocol %q (available: %s)",
			c.Server.Protocol, strings.Join(transport.GetAvailableProtocolNames(), ", "))
	}
	switch c.Server.AddressFamily {
	case "tcp", "tcp4", "tcp6":
	default:
		return coreerrors.Newf(coreerrors.CodeConfigError, "invalid address family %q", c.Server.AddressFamily)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return coreerrors.Newf(coreerrors.CodeConfigError, "invalid server port %d", c.Server.Port)
	}
	if c.UDP.Port < 0 || c.UDP.Port > 65535 {
		return coreerrors.Newf(coreerrors.CodeConfigError, "invalid udp port %d", c.UDP.Port)
	}
	if c.UDP.RateLimit < 0 {
		return coreerrors.Newf(coreerrors.CodeConfigError, "invalid udp rate limit %v", c.UDP.RateLimit)
	}
	if _, err := c.Encryption.Transform(); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeConfigError, "invalid encryption config")
	}
	return nil
}

// Transform 根据配置创建加密变换，未配置加密时返回 nil
func (e EncryptionConfig) Transform() (encryption.Transform, error) {
	return encryption.NewFromBase64(encryption.Method(e.Method), e.Key)
}

// Build 构建 tls.Config
func (t TLSConfig) Build() (*tls.Config, error) {
	conf := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify,
		ServerName:         t.ServerName,
		MinVersion:         tls.VersionTLS12,
	}
	if t.CACertFile != "" {
		pem, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to read CA file %s", t.CACertFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, coreerrors.Newf(coreerrors.CodeConfigError, "no certificates found in %s", t.CACertFile)
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

// udpPort 数据报通道端口
func (c *Config) udpPort(streamPort int) int {
	if c.UDP.Port > 0 {
		return c.UDP.Port
	}
	return streamPort
}

// ConfigSearchPaths 未指定配置文件时依次尝试的路径
func ConfigSearchPaths() []string {
	paths := []string{DefaultConfigFileName}
	if workDir, err := os.Getwd(); err == nil {
		paths[0] = filepath.Join(workDir, DefaultConfigFileName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".syncio", DefaultConfigFileName))
	}
	return paths
}

// LoadConfig 加载配置
// path 为空时按 ConfigSearchPaths 查找，全部不存在则返回默认配置
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		cfg, err := loadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		corelog.Infof("Config: loaded config from %s", path)
		return cfg, nil
	}

	for _, candidate := range ConfigSearchPaths() {
		cfg, err := loadConfigFromFile(candidate)
		if err == nil {
			corelog.Infof("Config: loaded config from %s", candidate)
			return cfg, nil
		}
		if !coreerrors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	corelog.Debugf("Config: no config file found, using defaults")
	return DefaultConfig(), nil
}

// loadConfigFromFile 从文件加载配置
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML 配置并填充默认值
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{TLS: TLSConfig{InsecureSkipVerify: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfigError, "failed to parse config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
