package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"syncio-client/internal/client"
	"syncio-client/internal/client/cli"
	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/encryption"
)

var configForce bool

// configCmd 配置管理命令组
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage syncio client configuration.

Commands:
  init      Generate a configuration file template
  show      Show the effective configuration
  keygen    Generate a random encryption key`,
}

// configInitCmd 生成配置文件模板
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Generate a configuration file template",
	Long: `Generate a configuration file template with default values.

Example:
  syncio-client config init                        # Create syncio-client.yaml in current directory
  syncio-client config init ~/.syncio/syncio-client.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

// configShowCmd 显示当前配置
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// configKeygenCmd 生成加密密钥
var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random base64 encryption key",
	Args:  cobra.NoArgs,
	RunE:  runConfigKeygen,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configKeygenCmd)
}

const configHeader = `# syncio client configuration
#
# server:
#   address / port:   stream channel endpoint
#   protocol:         tcp/kcp/quic/websocket
#   address_family:   tcp/tcp4/tcp6 (udp side channel follows the same family)
# udp:
#   port:             udp side channel port, 0 means same as server.port
#   rate_limit:       datagrams per second, 0 means unlimited
# encryption:
#   method:           empty, aes-256-gcm or chacha20-poly1305
#   key:              base64 32-byte key (see: syncio-client config keygen)

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	output := cli.NewOutput(cmd.OutOrStdout(), false)

	configPath := client.DefaultConfigFileName
	if len(args) > 0 {
		configPath = args[0]
	}

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return coreerrors.Newf(coreerrors.CodeConflict, "configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	data, err := yaml.Marshal(client.DefaultConfig())
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInternal, "failed to generate config")
	}

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to create directory %s", dir)
		}
	}

	if err := os.WriteFile(configPath, []byte(configHeader+string(data)), 0600); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to write config file %s", configPath)
	}

	output.Success("Configuration file created: %s", configPath)
	output.Info("Edit the file to customize your settings, then run:")
	output.Plain("  syncio-client connect -c %s", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	shown := *config
	if shown.Encryption.Key != "" {
		shown.Encryption.Key = "***"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInternal, "failed to render config")
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigKeygen(cmd *cobra.Command, args []string) error {
	key, err := encryption.GenerateKeyBase64()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}
