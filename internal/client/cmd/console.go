package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"syncio-client/internal/client"
	"syncio-client/internal/client/cli"
	corelog "syncio-client/internal/core/log"
)

var consoleUDP bool

// consoleCmd 交互式控制台
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Connect and start the interactive console",
	Long: `Connect to the server and start an interactive console for sending
arrays, calling remote functions and managing the UDP side channel.

Example:
  syncio-client console -s localhost:7000 --udp`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleUDP, "udp", false, "Open the UDP side channel after the handshake")
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := configureLogging(config, true); err != nil {
		return err
	}

	session := client.New(config, client.WithContext(ctx), client.WithLogger(corelog.Default()))
	defer session.Close()

	console, err := cli.NewConsole(ctx, session)
	if err != nil {
		return err
	}
	defer console.Stop()

	output := console.Output()
	cli.Watch(session, output)

	if err := connectSession(ctx, session, output); err != nil {
		return err
	}
	if consoleUDP {
		openUDP(ctx, session, output)
	}

	console.Start()
	output.Info("Shutting down client...")
	return nil
}
