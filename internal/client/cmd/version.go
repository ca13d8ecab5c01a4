package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"syncio-client/internal/client/transport"
	"syncio-client/internal/version"
)

// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "syncio-client %s\n", version.GetVersion())
	fmt.Fprintf(out, "  go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "  transports: %v\n", transport.GetAvailableProtocolNames())
}
