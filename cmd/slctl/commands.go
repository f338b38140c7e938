package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/simplelink/internal/discovery"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/ui"
	"github.com/muurk/simplelink/internal/wlan"
)

// Command flags
var (
	reboot        bool
	stored        bool
	patchFlag     string
	jsonOutput    bool
	watchInterval time.Duration
	discoverWait  time.Duration
	assumeYes     bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&ssidFlag, "ssid", "", "Network to join before network commands (default: stored profiles)")
	pf.StringVar(&keyFlag, "key", "", "Network key, or '-' to prompt")
	pf.StringVar(&securityFlag, "security", "", "Security mode: open, wep, wpa, wpa2 (default: wpa2 with a key, open without)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(discoverCmd)
}

func parsePatch(s string) (transport.PatchMode, error) {
	switch s {
	case "", "none", "eeprom":
		return transport.PatchNone, nil
	case "host":
		return transport.PatchHost, nil
	case "default", "rom":
		return transport.PatchDefault, nil
	}
	return 0, fmt.Errorf("unknown patch mode %q (want none, host or default)", s)
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the radio",
	Long: `Start the chip and configure its event mask.

Without --stored the connection policy is manual and stored profiles are
deleted. With --stored the chip reconnects from its profile store and the
command waits for the link.`,
	Example: `  # Fresh start with manual policy
  slctl up

  # Reconnect from stored profiles
  slctl up --stored

  # Recover a wedged chip
  slctl up --reboot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parsePatch(patchFlag)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.m.BringUp(cmd.Context(), wlan.BringUpOptions{Patch: patch, UseStoredProfile: stored}); err != nil {
			return err
		}
		if reboot {
			if err := s.m.Reboot(patch); err != nil {
				return err
			}
		}
		return printStatus(s, "Radio up")
	},
}

func init() {
	upCmd.Flags().BoolVar(&reboot, "reboot", false, "Stop and restart the radio after bring-up")
	upCmd.Flags().BoolVar(&stored, "stored", false, "Reconnect from stored profiles and wait for the link")
	upCmd.Flags().StringVar(&patchFlag, "patch", "none", "Firmware patch source: none, host, default")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show link state and chip status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.bringUpStored(cmd.Context()); err != nil {
			return err
		}
		if err := s.m.Poll(); err != nil {
			return err
		}
		return printStatus(s, "Link status")
	},
}

func printStatus(s *session, title string) error {
	status, err := s.m.Status()
	if err != nil {
		return err
	}
	details := append([]ui.Detail{{Key: "Transport", Value: s.target}},
		ui.StatusDetails(s.m.State().Snapshot(), status)...)
	ui.NewPrinter(nil).PrintSuccess(title, details...)
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for WiFi networks",
	Long: `Run a scan on the chip and list the networks it found.

The scan takes about ScanWait (4.5s by default) before results are read.`,
	Example: `  slctl scan
  slctl scan --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.bringUpStored(cmd.Context()); err != nil {
			return err
		}
		results, err := s.m.ScanNetworks(cmd.Context())
		if err != nil {
			return err
		}
		sort.SliceStable(results, func(i, j int) bool { return results[i].RSSI > results[j].RSSI })

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		p := ui.NewPrinter(nil)
		p.PrintHeader("Network Scan", "slctl scan", ui.Detail{Key: "Transport", Value: s.target})
		p.Println(ui.RenderScanTable(results))
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Drop the current association",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.bringUpStored(cmd.Context()); err != nil {
			return err
		}
		if err := s.m.Disconnect(); err != nil {
			return err
		}
		return printStatus(s, "Disconnected")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the radio",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.bringUpStored(cmd.Context()); err != nil {
			return err
		}
		if err := s.m.Shutdown(); err != nil {
			return err
		}
		ui.NewPrinter(nil).PrintSuccess("Radio stopped", ui.Detail{Key: "Transport", Value: s.target})
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage the chip's stored connection profiles",
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every stored profile and switch to manual policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes && !ui.Confirm(os.Stdin, os.Stdout, "Delete stored profiles", []string{
			"Every profile in the chip's non-volatile memory is erased.",
			"The chip will no longer reconnect on its own after a restart.",
		}) {
			return fmt.Errorf("aborted")
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.bringUpStored(cmd.Context()); err != nil {
			return err
		}
		if err := s.m.DeleteStoredProfiles(); err != nil {
			return err
		}
		ui.NewPrinter(nil).PrintSuccess("Profiles deleted", ui.Detail{Key: "Transport", Value: s.target})
		return nil
	},
}

func init() {
	profilesDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	profilesCmd.AddCommand(profilesDeleteCmd)
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List networks recorded in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if len(reg.Networks) == 0 {
			fmt.Println("No networks recorded yet. Join one with 'slctl connect'.")
			return nil
		}

		ssids := make([]string, 0, len(reg.Networks))
		for ssid := range reg.Networks {
			ssids = append(ssids, ssid)
		}
		sort.Strings(ssids)
		for _, ssid := range ssids {
			n := reg.Networks[ssid]
			last := "never"
			if !n.LastConnected.IsZero() {
				last = n.LastConnected.Format(time.RFC3339)
			}
			fmt.Printf("%-32s %-5s %-15s %s\n", ssid, n.Security, n.LastIP, last)
		}
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <ssid>",
	Short: "Remove a network from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if !reg.ForgetNetwork(args[0]) {
			return fmt.Errorf("network %q is not recorded", args[0])
		}
		return reg.Save()
	},
}

func init() {
	networksCmd.AddCommand(forgetCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the link state live",
	Long: `Poll the chip and show link, DHCP and chip status changes as they happen.

With --ssid the association request is issued and the watch shows the link
coming up. Press q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if ssidFlag == "" {
			if err := s.bringUpStored(cmd.Context()); err != nil {
				return err
			}
		} else {
			c, err := credentials(ssidFlag)
			if err != nil {
				return err
			}
			if err := s.m.BringUp(cmd.Context(), wlan.BringUpOptions{}); err != nil {
				return err
			}
			if c.Open() {
				err = s.m.ConnectOpen(c.SSID)
			} else {
				err = s.m.ConnectSecure(c.SSID, c.Key, c.Security)
			}
			if err != nil {
				return err
			}
		}
		return ui.Watch(s.m, watchInterval)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 250*time.Millisecond, "Poll interval")
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find bridge daemons on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Browsing for %s (timeout: %s)...\n\n", discovery.ServiceType, discoverWait)

		scanner := discovery.NewScanner()
		scanner.Timeout = discoverWait
		bridges, err := scanner.ScanForBridges(cmd.Context())
		if err != nil {
			return err
		}
		if len(bridges) == 0 {
			fmt.Println("No bridges found.")
			fmt.Println("\nTroubleshooting:")
			fmt.Println("  - Start one with 'slbridge serve --name <name>'")
			fmt.Println("  - mDNS does not cross subnets or most VPNs")
			fmt.Println("  - Try increasing --timeout")
			return nil
		}

		fmt.Printf("Found %d bridge(s):\n\n", len(bridges))
		for i, b := range bridges {
			fmt.Printf("%d. %s\n", i+1, b.Name)
			fmt.Printf("   URL:     %s\n", b.URL())
			fmt.Printf("   Host:    %s\n", b.Hostname)
			if chip := b.GetMetadata("chip"); chip != "" {
				fmt.Printf("   Chip:    %s\n", chip)
			}
			if v := b.GetMetadata("version"); v != "" {
				fmt.Printf("   Version: %s\n", v)
			}
			fmt.Println()
		}
		fmt.Printf("Use 'slctl --bridge-name %s status' to talk to a bridge\n", bridges[0].Name)
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverWait, "timeout", discovery.DefaultScanTimeout, "Browse duration")
}
