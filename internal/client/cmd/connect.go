package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"syncio-client/internal/client"
	"syncio-client/internal/client/cli"
	corelog "syncio-client/internal/core/log"
)

var connectUDP bool

// connectCmd 连接并打印事件
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the server and print incoming packets",
	Long: `Connect to the server, wait for the identity handshake and print every
incoming packet until interrupted or disconnected.

Example:
  syncio-client connect -s localhost:7000
  syncio-client connect -p kcp --udp`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().BoolVar(&connectUDP, "udp", false, "Open the UDP side channel after the handshake")
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := configureLogging(config, false); err != nil {
		return err
	}

	output := cli.NewOutput(cmd.OutOrStdout(), false)
	session := client.New(config, client.WithContext(ctx), client.WithLogger(corelog.Default()))
	defer session.Close()

	cli.Watch(session, output)

	// 断开即退出
	disconnected := make(chan struct{})
	var once sync.Once
	session.OnDisconnected(func(*client.Session, error) {
		once.Do(func() { close(disconnected) })
	})

	if err := connectSession(ctx, session, output); err != nil {
		return err
	}
	if connectUDP {
		openUDP(ctx, session, output)
	}

	output.Info("Press Ctrl+C to exit")
	select {
	case <-ctx.Done():
	case <-disconnected:
	}
	return nil
}
