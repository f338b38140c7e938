package wlan

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/soypat/seqs/eth/dns"
	"go.uber.org/zap"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

// AddressConfig is the chip's IP configuration.
type AddressConfig struct {
	IP         netip.Addr
	Netmask    netip.Addr
	Gateway    netip.Addr
	DHCPServer netip.Addr
	DNSServer  netip.Addr
	MAC        net.HardwareAddr
	SSID       string
}

// requireLink checks the preconditions shared by the IP layer operations.
func (m *Manager) requireLink(op string) error {
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	if !m.state.LinkUp() {
		return NewNotConnectedError(op, "link is down")
	}
	if !m.state.DHCPBound() {
		return NewNotConnectedError(op, "no DHCP lease")
	}
	return nil
}

// AddressConfig returns the IP configuration. It needs link and DHCP, and
// fails if the chip reports an address whose first octet is zero, the chip's
// marker for a lease that is not ready yet.
func (m *Manager) AddressConfig() (AddressConfig, error) {
	const op = "address config"
	if err := m.requireLink(op); err != nil {
		return AddressConfig{}, err
	}
	cfg, err := m.t.IPConfig()
	logging.LogTransportCall(transport.OpIPConfig, err)
	if err != nil {
		return AddressConfig{}, NewTransportError(op, transport.OpIPConfig, err)
	}
	if !cfg.IP.Is4() || cfg.IP.As4()[0] == 0 {
		return AddressConfig{}, NewNotConnectedError(op, "no valid address yet")
	}
	return AddressConfig{
		IP:         cfg.IP,
		Netmask:    cfg.Netmask,
		Gateway:    cfg.Gateway,
		DHCPServer: cfg.DHCPServer,
		DNSServer:  cfg.DNSServer,
		MAC:        cfg.MAC,
		SSID:       cfg.SSID,
	}, nil
}

// Ping sends attempts echo requests of size bytes and returns the received
// count of the last ping report.
//
// The report is sampled after a fixed sleep of 2 * timeout * attempts.
// Reports are not matched to requests, so overlapping bursts or a report
// that arrives after the sleep are miscounted.
func (m *Manager) Ping(ctx context.Context, ip netip.Addr, attempts int, timeout time.Duration, size int) (uint32, error) {
	const op = "ping"
	if err := m.requireLink(op); err != nil {
		return 0, err
	}
	if attempts <= 0 {
		return 0, NewInvalidArgumentError(op, "attempts must be positive")
	}
	if !ip.Is4() {
		return 0, NewInvalidArgumentError(op, "ping needs an IPv4 address")
	}

	m.state.ResetPing()

	if err := m.runSteps(op, []step{{transport.OpPingSend, func() error {
		return m.t.PingSend(ip, attempts, size, timeout)
	}}}); err != nil {
		return 0, err
	}

	if err := m.sleep(ctx, op, 2*timeout*time.Duration(attempts)); err != nil {
		return 0, err
	}
	// Reports are delivered on poll.
	if err := m.t.Poll(); err != nil {
		logging.Warn("Poll failed", zap.String("op", op), zap.Error(err))
	}

	rep, n := m.state.PingReport()
	if n == 0 {
		return 0, nil
	}
	logging.Debug("Ping report",
		zap.Uint32("sent", rep.Sent),
		zap.Uint32("received", rep.Received),
		zap.Duration("avg_rtt", rep.AvgRTT),
	)
	return rep.Received, nil
}

// ResolveHost looks name up through the chip's resolver.
func (m *Manager) ResolveHost(name string) (netip.Addr, error) {
	const op = "resolve"
	if err := m.requireLink(op); err != nil {
		return netip.Addr{}, err
	}
	if name == "" {
		return netip.Addr{}, NewInvalidArgumentError(op, "empty host name")
	}
	if _, err := dns.NewName(name); err != nil {
		return netip.Addr{}, NewInvalidArgumentError(op, "malformed host name "+name+": "+err.Error())
	}
	var addr netip.Addr
	if err := m.runSteps(op, []step{{transport.OpGetHostByName, func() error {
		a, err := m.t.GetHostByName(name)
		addr = a
		return err
	}}}); err != nil {
		return netip.Addr{}, err
	}
	return addr, nil
}
