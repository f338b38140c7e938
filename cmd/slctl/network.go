package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/simplelink/internal/ui"
	"github.com/muurk/simplelink/internal/wlan"
)

// Command flags
var (
	connectTimeout time.Duration
	noDecrypt      bool
	pingCount      int
	pingTimeout    time.Duration
	pingSize       int
	fetchPort      uint16
)

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(addrCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(fetchCmd)
}

var connectCmd = &cobra.Command{
	Use:   "connect <ssid>",
	Short: "Join a WiFi network and wait for a DHCP lease",
	Long: `Join a network, retrying the scan, associate and wait cycle until the link
is up or --timeout expires, then wait for the DHCP lease.

The network is recorded in the config file. Keys are never stored.`,
	Example: `  # Open network
  slctl connect cafe

  # WPA2, prompting for the key
  slctl connect home --key -

  # Explicit security mode
  slctl connect lab --security wep --key 0123456789`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ssid := ssidFlag
		if len(args) == 1 {
			ssid = args[0]
		}
		if ssid == "" {
			return fmt.Errorf("no network given; pass <ssid> or --ssid")
		}
		c, err := credentials(ssid)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		defer cancel()
		if err := s.connect(ctx, c); err != nil {
			return err
		}
		return printAddress(s, "Connected to "+c.SSID)
	},
}

func init() {
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 2*time.Minute, "Give up joining after this long")
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Receive network credentials over SmartConfig",
	Long: `Open the SmartConfig window and wait for a phone app to send network
credentials. The chip stores the received profile and reconnects from it.

The window length is timeouts.provisioning in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.m.BringUp(cmd.Context(), wlan.BringUpOptions{}); err != nil {
			return err
		}

		p := ui.NewPrinter(nil)
		p.PrintHeader("SmartConfig Provisioning", "slctl provision",
			ui.Detail{Key: "Transport", Value: s.target},
			ui.Detail{Key: "Window", Value: s.m.Config().ProvisioningTimeout.String()},
			ui.Detail{Key: "Decrypt", Value: strconv.FormatBool(!noDecrypt)},
		)

		if err := s.m.StartProvisioning(cmd.Context(), !noDecrypt); err != nil {
			return err
		}
		if err := s.m.WaitForDHCP(cmd.Context()); err != nil {
			return err
		}
		return printAddress(s, "Provisioned")
	},
}

func init() {
	provisionCmd.Flags().BoolVar(&noDecrypt, "no-decrypt", false, "The app sends the key in the clear")
}

func printAddress(s *session, title string) error {
	cfg, err := s.m.AddressConfig()
	if err != nil {
		return err
	}
	details := append([]ui.Detail{{Key: "Transport", Value: s.target}}, ui.AddressDetails(cfg)...)
	ui.NewPrinter(nil).PrintSuccess(title, details...)
	return nil
}

var addrCmd = &cobra.Command{
	Use:   "addr",
	Short: "Show the chip's address configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.join(cmd.Context()); err != nil {
			return err
		}
		return printAddress(s, "Address configuration")
	},
}

// lookup parses host as an address or resolves it through the chip.
func lookup(s *session, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}
	return s.m.ResolveHost(host)
}

var pingCmd = &cobra.Command{
	Use:   "ping <host>",
	Short: "Ping a host from the chip",
	Long: `Send ICMP echo requests from the chip and report how many replies came back.

The report is read after a fixed wait of 2 * timeout * count.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.join(cmd.Context()); err != nil {
			return err
		}
		ip, err := lookup(s, args[0])
		if err != nil {
			return err
		}
		received, err := s.m.Ping(cmd.Context(), ip, pingCount, pingTimeout, pingSize)
		if err != nil {
			return err
		}

		p := ui.NewPrinter(nil)
		details := []ui.Detail{
			{Key: "Host", Value: args[0]},
			{Key: "Address", Value: ip.String()},
			{Key: "Sent", Value: strconv.Itoa(pingCount)},
			{Key: "Received", Value: strconv.FormatUint(uint64(received), 10)},
		}
		if received == 0 {
			p.PrintWarning(fmt.Sprintf("No replies from %s", ip))
		}
		p.PrintSuccess("Ping complete", details...)
		return nil
	},
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 3, "Echo requests to send")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", time.Second, "Per-request timeout")
	pingCmd.Flags().IntVarP(&pingSize, "size", "s", 32, "Payload size in bytes")
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolve a host name through the chip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.join(cmd.Context()); err != nil {
			return err
		}
		addr, err := s.m.ResolveHost(args[0])
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <host> [path]",
	Short: "Fetch a page over a chip TCP socket",
	Long: `Open a TCP socket on the chip, send an HTTP/1.0 GET and copy the response
to stdout until the server closes the connection.`,
	Example: `  slctl fetch example.com
  slctl fetch 192.168.1.10 /status --port 8080`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, path := args[0], "/"
		if len(args) == 2 {
			path = args[1]
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.join(cmd.Context()); err != nil {
			return err
		}
		ip, err := lookup(s, host)
		if err != nil {
			return err
		}

		c, err := s.m.ConnectTCP(ip, fetchPort)
		if err != nil {
			return err
		}
		defer c.Close()

		req := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\nUser-Agent: slctl\r\n\r\n", path, host)
		if _, err := c.WriteString(req); err != nil {
			return err
		}
		if _, err := io.Copy(os.Stdout, c); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().Uint16VarP(&fetchPort, "port", "p", 80, "TCP port")
}
