package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/simplelink/internal/config"
	"github.com/muurk/simplelink/internal/discovery"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/transport/remote"
	"github.com/muurk/simplelink/internal/transport/sim"
	"github.com/muurk/simplelink/internal/wlan"
)

// Network selection flags shared by every command that needs a link.
var (
	ssidFlag     string
	keyFlag      string
	securityFlag string
)

// session is one chip reached through the selected transport.
type session struct {
	reg    *config.Registry
	m      *wlan.Manager
	target string // "sim" or the bridge URL
	closer io.Closer
}

func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadRegistry()
}

// openSession connects to the chip selected by the flags and config file.
func openSession(ctx context.Context) (*session, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	cfg := wlan.DefaultConfig()
	reg.Apply(cfg)

	kind := reg.Transport.Kind
	url := reg.Transport.URL
	switch {
	case useSim:
		kind = config.TransportSim
	case bridgeURL != "" || bridgeName != "":
		kind, url = config.TransportBridge, bridgeURL
	}

	s := &session{reg: reg}
	var t transport.Transport
	if kind == config.TransportBridge {
		if url == "" {
			if url, err = discoverBridge(ctx, reg); err != nil {
				return nil, err
			}
		}
		rt, err := remote.Dial(ctx, url, remote.Options{})
		if err != nil {
			return nil, err
		}
		t, s.target, s.closer = rt, url, rt
	} else {
		chip, closer, err := newSimChip()
		if err != nil {
			return nil, err
		}
		t, s.target, s.closer = chip, config.TransportSim, closer
	}

	logging.Info("Session opened", zap.String("target", s.target))
	s.m = wlan.New(t, cfg)
	return s, nil
}

func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// discoverBridge finds a bridge over mDNS.
func discoverBridge(ctx context.Context, reg *config.Registry) (string, error) {
	if !reg.Preferences.AutoDiscover && bridgeName == "" {
		return "", errors.New("no bridge URL configured and auto_discover is off; pass --bridge")
	}
	scanner := discovery.NewScanner()
	scanner.Timeout = reg.DiscoverTimeout()

	if bridgeName != "" {
		b, err := scanner.WaitForBridge(ctx, bridgeName)
		if err != nil {
			return "", err
		}
		return b.URL(), nil
	}

	bridges, err := scanner.ScanForBridges(ctx)
	if err != nil {
		return "", fmt.Errorf("bridge discovery failed: %w", err)
	}
	switch len(bridges) {
	case 0:
		return "", errors.New("no bridge found on the local network; pass --bridge or --sim")
	case 1:
	default:
		logging.Warn("Several bridges found, using the first; pass --bridge-name to choose",
			zap.Int("count", len(bridges)),
			zap.String("using", bridges[0].Name),
		)
	}
	return bridges[0].URL(), nil
}

// newSimChip builds the simulated chip from the world file and state flags.
func newSimChip() (*sim.Chip, io.Closer, error) {
	world := sim.DemoWorld()
	if worldPath != "" {
		var err error
		if world, err = sim.LoadWorld(worldPath); err != nil {
			return nil, nil, err
		}
	}
	opts, err := world.Options()
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer
	if simState != "" {
		store, err := sim.OpenBoltStore(simState)
		if err != nil {
			return nil, nil, err
		}
		opts.Store, closer = store, store
	}
	return sim.New(opts), closer, nil
}

// credentials builds the association credentials from the flags. A key of
// "-" is read from the terminal.
func credentials(ssid string) (wlan.Credentials, error) {
	c := wlan.Credentials{SSID: ssid, Key: keyFlag}
	if c.Key == "-" {
		key, err := readKey(ssid)
		if err != nil {
			return c, err
		}
		c.Key = key
	}

	switch {
	case securityFlag != "":
		sec, err := transport.ParseSecurity(securityFlag)
		if err != nil {
			return c, err
		}
		c.Security = sec
	case c.Key != "":
		c.Security = transport.SecurityWPA2
	default:
		c.Security = transport.SecurityOpen
	}
	return c, nil
}

// readKey prompts for a key without echo, or reads a line from a
// non-terminal stdin.
func readKey(ssid string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read key from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprintf(os.Stderr, "Key for %s: ", ssid)
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return string(key), nil
}

// bringUpStored starts the chip on its stored profiles. A link that does not
// come up is not an error here; the chip stays initialized.
func (s *session) bringUpStored(ctx context.Context) error {
	err := s.m.BringUp(ctx, wlan.BringUpOptions{UseStoredProfile: true})
	if wlan.IsTimeout(err) {
		logging.Info("No stored profile connected", zap.Error(err))
		return nil
	}
	return err
}

// join brings the chip up and waits for a DHCP lease. With --ssid it
// associates explicitly, otherwise it relies on the stored profiles.
func (s *session) join(ctx context.Context) error {
	if ssidFlag == "" {
		if err := s.m.BringUp(ctx, wlan.BringUpOptions{UseStoredProfile: true}); err != nil {
			return err
		}
		return s.m.WaitForDHCP(ctx)
	}
	c, err := credentials(ssidFlag)
	if err != nil {
		return err
	}
	return s.connect(ctx, c)
}

// connect runs the full join and records the network in the config file.
func (s *session) connect(ctx context.Context, c wlan.Credentials) error {
	if err := s.m.BringUp(ctx, wlan.BringUpOptions{}); err != nil {
		return err
	}
	if err := s.m.ConnectWithRetry(ctx, c); err != nil {
		return err
	}
	if err := s.m.WaitForDHCP(ctx); err != nil {
		return err
	}

	ip := ""
	if addr, err := s.m.AddressConfig(); err == nil {
		ip = addr.IP.String()
	}
	s.reg.RecordConnection(c.SSID, c.Security, ip)
	if err := s.reg.Save(); err != nil {
		logging.Warn("Failed to save config", zap.Error(err))
	}
	return nil
}
