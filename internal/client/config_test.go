package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/encryption"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "tcp", cfg.Server.Protocol)
	assert.Equal(t, "tcp", cfg.Server.AddressFamily)
	assert.Equal(t, DefaultConnectTimeout, cfg.Server.ConnectTimeout)
	assert.Equal(t, DefaultHandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, "/_syncio", cfg.Server.WebSocketPath)
	assert.True(t, cfg.TLS.InsecureSkipVerify)
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig(t *testing.T) {
	key, err := encryption.GenerateKeyBase64()
	require.NoError(t, err)

	data := []byte(`
server:
  address: game.example.com
  port: 9000
  protocol: KCP
  address_family: tcp4
  connect_timeout: 3s
handshake_timeout: 5s
send_queue_size: 64
remote_call_timeout: 2s
udp:
  port: 9001
  rate_limit: 30
encryption:
  method: aes-256-gcm
  key: ` + key + `
log:
  level: debug
  format: json
`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "game.example.com", cfg.Server.Address)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "kcp", cfg.Server.Protocol)
	assert.Equal(t, "tcp4", cfg.Server.AddressFamily)
	assert.Equal(t, 3*time.Second, cfg.Server.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 64, cfg.SendQueueSize)
	assert.Equal(t, 2*time.Second, cfg.RemoteCallTimeout)
	assert.Equal(t, 9001, cfg.udpPort(cfg.Server.Port))
	assert.Equal(t, 30.0, cfg.UDP.RateLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.TLS.InsecureSkipVerify)

	transform, err := cfg.Encryption.Transform()
	require.NoError(t, err)
	assert.Equal(t, encryption.MethodAESGCM, transform.Method())
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown protocol", yaml: "server:\n  protocol: carrier-pigeon\n"},
		{name: "bad address family", yaml: "server:\n  address_family: ipx\n"},
		{name: "bad port", yaml: "server:\n  port: 70000\n"},
		{name: "bad udp port", yaml: "udp:\n  port: -1\n"},
		{name: "negative rate limit", yaml: "udp:\n  rate_limit: -5\n"},
		{name: "bad encryption key", yaml: "encryption:\n  method: aes-256-gcm\n  key: not-base64!\n"},
		{name: "unknown encryption method", yaml: "encryption:\n  method: rot13\n  key: AAAA\n"},
		{name: "malformed yaml", yaml: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConfigError), "got %v", err)
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: 10.0.0.1\n  port: 7100\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Server.Address)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, 7100, cfg.udpPort(cfg.Server.Port))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConfigError))
}

func TestTLSConfig_Build(t *testing.T) {
	conf, err := TLSConfig{InsecureSkipVerify: true, ServerName: "game.example.com"}.Build()
	require.NoError(t, err)
	assert.True(t, conf.InsecureSkipVerify)
	assert.Equal(t, "game.example.com", conf.ServerName)

	_, err = TLSConfig{CACertFile: filepath.Join(t.TempDir(), "missing.pem")}.Build()
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a certificate"), 0o600))
	_, err = TLSConfig{CACertFile: empty}.Build()
	assert.Error(t, err)
}
