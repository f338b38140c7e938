package sim

import (
	"net/netip"
	"strings"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

// IPConfig reports the lease. Before DHCP completes every address is
// 0.0.0.0.
func (c *Chip) IPConfig() (transport.IPConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpIPConfig); err != nil {
		return transport.IPConfig{}, err
	}
	zero := netip.IPv4Unspecified()
	cfg := transport.IPConfig{
		IP:         zero,
		Netmask:    zero,
		Gateway:    zero,
		DHCPServer: zero,
		DNSServer:  zero,
		MAC:        c.opts.MAC,
	}
	now := c.now()
	if c.linkUp(now) {
		cfg.SSID = c.assoc.SSID
	}
	if c.dhcpBound(now) {
		l := c.opts.Lease
		cfg.IP, cfg.Netmask, cfg.Gateway = l.IP, l.Netmask, l.Gateway
		cfg.DHCPServer, cfg.DNSServer = l.DHCPServer, l.DNSServer
	}
	return cfg, nil
}

// PingSend starts a ping burst. The report event is due once every attempt
// was answered or timed out.
func (c *Chip) PingSend(ip netip.Addr, attempts, size int, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpPingSend); err != nil {
		return err
	}
	now := c.now()
	if !c.dhcpBound(now) {
		return callErr(transport.OpPingSend, "no lease")
	}
	if attempts <= 0 {
		return callErr(transport.OpPingSend, "invalid attempt count %d", attempts)
	}
	rep := transport.PingReport{Sent: uint32(attempts)}
	var done time.Duration
	if c.reachable(ip) {
		rtt := c.opts.PingRTT
		rep.Received = uint32(attempts)
		rep.MinRTT, rep.MaxRTT, rep.AvgRTT = rtt, rtt, rtt
		done = rtt * time.Duration(attempts)
	} else {
		done = timeout * time.Duration(attempts)
	}
	c.emit(now.Add(done), transport.Event{Kind: transport.EventPingReport, Ping: rep})
	return nil
}

// reachable reports whether ip answers pings. Callers hold c.mu.
func (c *Chip) reachable(ip netip.Addr) bool {
	l := c.opts.Lease
	if ip == l.Gateway || ip == l.DNSServer || ip == l.IP {
		return true
	}
	for _, a := range c.opts.Hosts {
		if a == ip {
			return true
		}
	}
	for ap := range c.opts.Peers {
		if ap.Addr() == ip {
			return true
		}
	}
	return false
}

// GetHostByName resolves name from Options.Hosts. Lookups ignore case and a
// trailing dot.
func (c *Chip) GetHostByName(name string) (netip.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpGetHostByName); err != nil {
		return netip.Addr{}, err
	}
	if !c.dhcpBound(c.now()) {
		return netip.Addr{}, callErr(transport.OpGetHostByName, "no lease")
	}
	want := strings.TrimSuffix(strings.ToLower(name), ".")
	for host, addr := range c.opts.Hosts {
		if strings.TrimSuffix(strings.ToLower(host), ".") == want {
			return addr, nil
		}
	}
	return netip.Addr{}, callErr(transport.OpGetHostByName, "host %s not found", name)
}

// MDNSAdvertise starts or stops announcing name.
func (c *Chip) MDNSAdvertise(enable bool, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpMDNSAdvertise); err != nil {
		return err
	}
	if !c.dhcpBound(c.now()) {
		return callErr(transport.OpMDNSAdvertise, "no lease")
	}
	if enable {
		c.advertised = name
	} else {
		c.advertised = ""
	}
	return nil
}
