// Slbridge exposes a SimpleLink chip to remote hosts over a websocket.
//
// The daemon owns the chip and serves one slctl session at a time. It can
// advertise itself over mDNS so hosts on the same network find it without
// a configured URL. The chip served today is the simulated one, built from
// a world file.
//
// Usage:
//
//	slbridge serve [flags]
//
// See 'slbridge serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/simplelink/internal/bridge"
	"github.com/muurk/simplelink/internal/discovery"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport/sim"
	"github.com/muurk/simplelink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slbridge",
	Short: "SimpleLink chip bridge daemon",
	Long: `A websocket daemon that exposes a SimpleLink WiFi co-processor to a remote
host running slctl.

Only one host may hold a session at a time; a second connection is refused
until the first disconnects. Events raised by the chip are queued and sent to
the host ahead of the response to its next poll.`,
	Version: version.Version,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(worldCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command and flags
var (
	host       string
	port       int
	path       string
	certPath   string
	keyPath    string
	name       string
	captureDir string
	statePath  string
	worldPath  string
	logLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Start the bridge and serve the simulated chip until SIGINT or SIGTERM.

The radio environment (access points, hosts, TCP peers and the SmartConfig
sender) comes from --world, or the built-in demo world when omitted. With
--state the chip's stored profiles and SmartConfig key survive restarts.

To record every frame for later analysis, pass --capture with a directory.`,
	Example: `  # Plain websocket on the default port, advertised as "lab"
  slbridge serve --name lab

  # TLS with a persistent profile store
  slbridge serve --cert cert.pem --key key.pem --state ./chip.db

  # Custom radio environment with frame captures
  slbridge serve --world world.yaml --capture ./captures --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	serveCmd.Flags().IntVar(&port, "port", discovery.DefaultPort, "Listen port")
	serveCmd.Flags().StringVar(&path, "path", discovery.DefaultPath, "Websocket endpoint path")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file (plain websocket if not provided)")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serveCmd.Flags().StringVar(&name, "name", "", "mDNS instance name to advertise (disabled if not specified)")
	serveCmd.Flags().StringVar(&captureDir, "capture", "", "Directory to write frame captures (disabled if not specified)")
	serveCmd.Flags().StringVar(&statePath, "state", "", "bbolt file holding the chip's non-volatile memory")
	serveCmd.Flags().StringVar(&worldPath, "world", "", "World file describing the radio environment")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	if (certPath != "") != (keyPath != "") {
		return fmt.Errorf("both --cert and --key must be provided together")
	}
	if name != "" && !discovery.ValidName(name) {
		return fmt.Errorf("invalid --name %q: use letters, digits and dashes", name)
	}
	if captureDir != "" {
		info, err := os.Stat(captureDir)
		if os.IsNotExist(err) {
			return fmt.Errorf("capture directory does not exist: %s", captureDir)
		}
		if err != nil {
			return fmt.Errorf("cannot access capture directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("capture path is not a directory: %s", captureDir)
		}
	}

	world := sim.DemoWorld()
	if worldPath != "" {
		var err error
		if world, err = sim.LoadWorld(worldPath); err != nil {
			return err
		}
	}
	opts, err := world.Options()
	if err != nil {
		return err
	}
	if statePath != "" {
		store, err := sim.OpenBoltStore(statePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}
	chip := sim.New(opts)

	logging.Info("Simulated chip ready",
		zap.Int("access_points", len(opts.AccessPoints)),
		zap.Int("peers", len(opts.Peers)),
		zap.Bool("persistent", statePath != ""),
	)

	srv, err := bridge.New(&bridge.Config{
		Host:       host,
		Port:       port,
		Path:       path,
		CertPath:   certPath,
		KeyPath:    keyPath,
		Name:       name,
		ChipKind:   "sim",
		CaptureDir: captureDir,
	}, chip)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	return srv.Start()
}

var worldCmd = &cobra.Command{
	Use:   "world",
	Short: "Print the built-in demo world as YAML",
	Long: `Print the built-in demo world. Save it, edit it and pass it back with
'slbridge serve --world'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(sim.DemoWorld())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("slbridge %s (commit: %s)\n", version.Version, version.Commit)
	},
}
