// Package cmd 提供 syncio 客户端的命令框架
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"syncio-client/internal/client"
	"syncio-client/internal/client/cli"
	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/version"
)

// 全局标志
var (
	serverAddr string
	protocol   string
	configFile string
	logFile    string
	logLevel   string
)

// rootCmd 代表根命令
var rootCmd = &cobra.Command{
	Use:   "syncio-client",
	Short: "syncio - client for the syncio application transport",
	Long: `syncio-client connects to a syncio server over TCP, KCP, QUIC or WebSocket,
completes the identity handshake and optionally upgrades to a UDP side channel.

Quick Start:
  syncio-client connect -s game.example.com:7000
  syncio-client connect --udp
  syncio-client console`,
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			corelog.Errorf("FATAL: main goroutine panic recovered: %v", r)
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage 命令失败时的输出，可重试的错误附带提示
func errorMessage(err error) string {
	if coreerrors.IsRetryable(err) {
		return err.Error() + " (temporary failure, retrying may succeed)"
	}
	return err.Error()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Server address host[:port] (e.g., localhost:7000)")
	rootCmd.PersistentFlags().StringVarP(&protocol, "protocol", "p", "", "Transport protocol: tcp/kcp/quic/websocket/ws")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "Log file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug/info/warn/error")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 加载配置，命令行参数覆盖配置文件
func loadConfig() (*client.Config, error) {
	config, err := client.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	if protocol != "" {
		config.Server.Protocol = normalizeProtocol(protocol)
	}
	if serverAddr != "" {
		if err := applyServerAddress(config, serverAddr); err != nil {
			return nil, err
		}
	}
	if logFile != "" {
		config.Log.File = logFile
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyServerAddress 解析 host[:port]，未带端口时保留配置中的端口
func applyServerAddress(config *client.Config, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return coreerrors.New(coreerrors.CodeInvalidParam, "server address is empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// 不带端口（含裸 IPv6）
		config.Server.Address = strings.Trim(addr, "[]")
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "invalid server port %q", portStr)
	}
	if host == "" {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "server address %q has no host", addr)
	}
	config.Server.Address = host
	config.Server.Port = port
	return nil
}

// normalizeProtocol 规范化协议名称
func normalizeProtocol(protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	if protocol == "ws" || protocol == "wss" {
		return "websocket"
	}
	return protocol
}

// configureLogging 配置日志，interactive 时默认写入文件以免干扰提示符
func configureLogging(config *client.Config, interactive bool) error {
	logConfig := config.Log
	if logConfig.File == "" && interactive {
		home, err := os.UserHomeDir()
		if err != nil {
			return coreerrors.Wrap(err, coreerrors.CodeConfigError, "failed to resolve home directory")
		}
		logConfig.File = filepath.Join(home, ".syncio", "syncio-client.log")
	}
	if logConfig.File != "" {
		if err := os.MkdirAll(filepath.Dir(logConfig.File), 0755); err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to create log directory for %s", logConfig.File)
		}
	}
	return corelog.Configure(logConfig)
}

// connectSession 连接服务器并等待握手结果
func connectSession(ctx context.Context, session *client.Session, output *cli.Output) error {
	config := session.Config()
	output.Info("Connecting to %s:%d via %s...", config.Server.Address, config.Server.Port, config.Server.Protocol)

	if err := session.Connect(ctx, config.Server.Address, config.Server.Port); err != nil {
		return err
	}
	if result := session.WaitForHandshakeResult(ctx); result != client.PhaseSucceeded {
		return coreerrors.Newf(coreerrors.CodeHandshakeFailed, "handshake did not complete: %s", result)
	}
	return nil
}

// openUDP 打开 UDP 旁路通道并等待确认
func openUDP(ctx context.Context, session *client.Session, output *cli.Output) {
	if err := session.TryOpenUDPConnection(); err != nil {
		output.Warning("Failed to open udp side channel: %v", err)
		return
	}
	if result := session.WaitForUDPResult(ctx); result != client.PhaseSucceeded {
		output.Warning("UDP side channel not confirmed: %s", result)
		return
	}
	output.Success("UDP side channel confirmed")
}
