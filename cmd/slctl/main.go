// Slctl drives a SimpleLink WiFi co-processor from the command line.
//
// The chip is reached either through an slbridge daemon over a websocket
// or through an in-process simulated chip. Every command brings the chip
// up, performs one Connection Manager operation and prints the result.
//
// Usage:
//
//	slctl [command] [flags]
//
// See 'slctl --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/ui"
	"github.com/muurk/simplelink/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		ui.NewPrinter(os.Stderr).PrintError(commandTitle(), err)
		os.Exit(1)
	}
}

// Global flags
var (
	bridgeURL  string
	bridgeName string
	useSim     bool
	worldPath  string
	simState   string
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "slctl",
	Short: "SimpleLink WiFi co-processor control",
	Long: `Control a SimpleLink WiFi co-processor.

Commands bring the radio up, join networks, run SmartConfig provisioning,
and use the chip's network stack (address configuration, ping, DNS and TCP).

The chip is reached through an slbridge daemon (--bridge, or discovered over
mDNS) or simulated in-process (--sim). The default comes from the config file.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&bridgeURL, "bridge", "", "Bridge websocket URL (e.g. ws://192.168.1.20:7681/bridge)")
	pf.StringVar(&bridgeName, "bridge-name", "", "Discover the bridge with this mDNS instance name")
	pf.BoolVar(&useSim, "sim", false, "Use an in-process simulated chip")
	pf.StringVar(&worldPath, "world", "", "World file describing the simulated radio environment (with --sim)")
	pf.StringVar(&simState, "sim-state", "", "bbolt file holding the simulated chip's non-volatile memory (with --sim)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default from "+logging.LogLevelEnvVar)
	pf.StringVar(&configPath, "config", "", "Config file (default is the user config directory)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("slctl %s (commit: %s)\n", version.Version, version.Commit)
	},
}

// commandTitle names the command that failed for the error box.
func commandTitle() string {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	if err != nil || cmd == nil || cmd == rootCmd {
		return "slctl"
	}
	return "slctl " + cmd.Name()
}
