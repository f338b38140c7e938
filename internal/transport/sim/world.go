package sim

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/simplelink/internal/transport"
)

// World describes the simulated radio environment in a YAML file:
//
//	networks:
//	  - {ssid: home, security: wpa2, key: correct horse, rssi: 90}
//	hosts:
//	  example.com: 93.184.216.34
//	peers:
//	  - {addr: "93.184.216.34:80", kind: http, body: "hello"}
//	provision:
//	  ssid: home
//	  security: wpa2
//	  key: correct horse
//	  aes_key: "0123456789012345"
//	  delay: 2s
type World struct {
	Networks     []WorldNetwork    `yaml:"networks"`
	Hosts        map[string]string `yaml:"hosts,omitempty"`
	Peers        []WorldPeer       `yaml:"peers,omitempty"`
	Provision    *WorldProvision   `yaml:"provision,omitempty"`
	ConnectDelay time.Duration     `yaml:"connect_delay,omitempty"`
	DHCPDelay    time.Duration     `yaml:"dhcp_delay,omitempty"`
}

// WorldNetwork is an access point in range.
type WorldNetwork struct {
	SSID     string `yaml:"ssid"`
	Security string `yaml:"security,omitempty"` // open, wep, wpa or wpa2
	Key      string `yaml:"key,omitempty"`
	RSSI     uint8  `yaml:"rssi,omitempty"`
}

// WorldPeer is a remote endpoint sockets can reach.
type WorldPeer struct {
	Addr string `yaml:"addr"`
	Kind string `yaml:"kind"` // echo or http
	Body string `yaml:"body,omitempty"`
}

// WorldProvision is what the SmartConfig phone app sends.
type WorldProvision struct {
	WorldNetwork `yaml:",inline"`
	AESKey       string        `yaml:"aes_key,omitempty"`
	Delay        time.Duration `yaml:"delay,omitempty"`
}

// DemoWorld is the environment used when no world file is given.
func DemoWorld() World {
	home := WorldNetwork{SSID: "home", Security: "wpa2", Key: "correct horse", RSSI: 90}
	return World{
		Networks: []WorldNetwork{
			home,
			{SSID: "cafe", Security: "open", RSSI: 60},
			{SSID: "neighbour", Security: "wpa", Key: "hunter22", RSSI: 25},
		},
		Hosts: map[string]string{
			"example.com":       "93.184.216.34",
			"echo.example.com":  "93.184.216.35",
			"time.example.com":  "93.184.216.36",
			"gateway.home.arpa": "192.168.1.1",
		},
		Peers: []WorldPeer{
			{Addr: "93.184.216.34:80", Kind: "http", Body: "Hello from the simulated network.\n"},
			{Addr: "93.184.216.35:7", Kind: "echo"},
		},
		Provision: &WorldProvision{
			WorldNetwork: home,
			AESKey:       "0123456789012345",
			Delay:        2 * time.Second,
		},
		ConnectDelay: 300 * time.Millisecond,
		DHCPDelay:    200 * time.Millisecond,
	}
}

// LoadWorld reads a world file.
func LoadWorld(path string) (World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return World{}, fmt.Errorf("failed to read world file: %w", err)
	}
	var w World
	if err := yaml.Unmarshal(data, &w); err != nil {
		return World{}, fmt.Errorf("failed to parse world file %s: %w", path, err)
	}
	return w, nil
}

func (n WorldNetwork) accessPoint() (AccessPoint, error) {
	sec, err := transport.ParseSecurity(n.Security)
	if err != nil {
		return AccessPoint{}, fmt.Errorf("network %q: %w", n.SSID, err)
	}
	return AccessPoint{SSID: n.SSID, Security: sec, Key: n.Key, RSSI: n.RSSI}, nil
}

// Options converts the world into chip options.
func (w World) Options() (Options, error) {
	var opts Options
	for _, n := range w.Networks {
		ap, err := n.accessPoint()
		if err != nil {
			return Options{}, err
		}
		opts.AccessPoints = append(opts.AccessPoints, ap)
	}

	if len(w.Hosts) > 0 {
		opts.Hosts = make(map[string]netip.Addr, len(w.Hosts))
		for name, ip := range w.Hosts {
			addr, err := netip.ParseAddr(ip)
			if err != nil {
				return Options{}, fmt.Errorf("host %q: %w", name, err)
			}
			opts.Hosts[name] = addr
		}
	}

	if len(w.Peers) > 0 {
		opts.Peers = make(map[netip.AddrPort]PeerFactory, len(w.Peers))
		for _, p := range w.Peers {
			addr, err := netip.ParseAddrPort(p.Addr)
			if err != nil {
				return Options{}, fmt.Errorf("peer %q: %w", p.Addr, err)
			}
			switch p.Kind {
			case "echo":
				opts.Peers[addr] = Echo()
			case "http":
				opts.Peers[addr] = HTTPServer(p.Body)
			default:
				return Options{}, fmt.Errorf("peer %q: unknown kind %q", p.Addr, p.Kind)
			}
		}
	}

	if p := w.Provision; p != nil {
		ap, err := p.accessPoint()
		if err != nil {
			return Options{}, fmt.Errorf("provision: %w", err)
		}
		if p.AESKey != "" && len(p.AESKey) != transport.AESKeySize {
			return Options{}, fmt.Errorf("provision: aes_key must be %d bytes", transport.AESKeySize)
		}
		opts.Provisioner = &Provisioner{Network: ap, AESKey: p.AESKey, Delay: p.Delay}
	}

	opts.ConnectDelay = w.ConnectDelay
	opts.DHCPDelay = w.DHCPDelay
	return opts, nil
}
