package config

import (
	"fmt"
	"time"

	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/wlan"
)

// Transport kinds
const (
	TransportSim    = "sim"
	TransportBridge = "bridge"
)

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int                 `yaml:"version"`
	Transport   *TransportConfig    `yaml:"transport,omitempty"`
	Timeouts    *Timeouts           `yaml:"timeouts,omitempty"`
	DeviceName  string              `yaml:"device_name,omitempty"` // mDNS name announced by the chip
	Networks    map[string]*Network `yaml:"networks,omitempty"`    // Keyed by SSID
	Preferences *Preferences        `yaml:"preferences,omitempty"`

	path string
}

// TransportConfig selects how the chip is reached.
type TransportConfig struct {
	Kind string `yaml:"kind"`          // "sim" or "bridge"
	URL  string `yaml:"url,omitempty"` // Bridge websocket URL; empty means discover over mDNS
}

// Timeouts override the Connection Manager budgets. Zero keeps the default.
type Timeouts struct {
	Connect      time.Duration `yaml:"connect,omitempty"`
	Provisioning time.Duration `yaml:"provisioning,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Network records a network the chip has joined.
// Note: Keys are NEVER stored - they are always prompted from the user.
type Network struct {
	Security      string    `yaml:"security"`
	LastConnected time.Time `yaml:"last_connected,omitempty"`
	LastIP        string    `yaml:"last_ip,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	AutoDiscover    bool `yaml:"auto_discover"`    // Find a bridge over mDNS when no URL is set
	DiscoverTimeout int  `yaml:"discover_timeout"` // mDNS discovery timeout in seconds
}

func defaultPreferences() *Preferences {
	return &Preferences{
		AutoDiscover:    true,
		DiscoverTimeout: 5,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Transport:   &TransportConfig{Kind: TransportSim},
		Networks:    make(map[string]*Network),
		Preferences: defaultPreferences(),
	}
}

// Path returns the file the registry was loaded from, or "" for a
// registry that was never loaded.
func (r *Registry) Path() string {
	return r.path
}

// Validate checks the transport selection.
func (r *Registry) Validate() error {
	if r.Transport == nil {
		return nil
	}
	switch r.Transport.Kind {
	case TransportSim, "":
		return nil
	case TransportBridge:
		if r.Transport.URL == "" && (r.Preferences == nil || !r.Preferences.AutoDiscover) {
			return fmt.Errorf("transport.kind %q needs transport.url or preferences.auto_discover", TransportBridge)
		}
		return nil
	}
	return fmt.Errorf("unknown transport.kind %q (want %q or %q)", r.Transport.Kind, TransportSim, TransportBridge)
}

// GetNetwork retrieves network metadata by SSID.
// Returns nil if the network doesn't exist in the registry.
func (r *Registry) GetNetwork(ssid string) *Network {
	return r.Networks[ssid]
}

// RecordConnection notes a successful join of ssid.
func (r *Registry) RecordConnection(ssid string, sec transport.Security, ip string) {
	if r.Networks == nil {
		r.Networks = make(map[string]*Network)
	}
	r.Networks[ssid] = &Network{
		Security:      sec.String(),
		LastConnected: time.Now(),
		LastIP:        ip,
	}
}

// ForgetNetwork removes ssid. It reports whether the network was known.
func (r *Registry) ForgetNetwork(ssid string) bool {
	if _, ok := r.Networks[ssid]; !ok {
		return false
	}
	delete(r.Networks, ssid)
	return true
}

// Apply copies the configured overrides into cfg.
func (r *Registry) Apply(cfg *wlan.Config) {
	if r.DeviceName != "" {
		cfg.DeviceName = r.DeviceName
	}
	t := r.Timeouts
	if t == nil {
		return
	}
	if t.Connect > 0 {
		cfg.ConnectTimeout = t.Connect
	}
	if t.Provisioning > 0 {
		cfg.ProvisioningTimeout = t.Provisioning
	}
	if t.PollInterval > 0 {
		cfg.PollInterval = t.PollInterval
	}
}

// DiscoverTimeout returns the configured mDNS timeout.
func (r *Registry) DiscoverTimeout() time.Duration {
	if r.Preferences == nil || r.Preferences.DiscoverTimeout <= 0 {
		return time.Duration(defaultPreferences().DiscoverTimeout) * time.Second
	}
	return time.Duration(r.Preferences.DiscoverTimeout) * time.Second
}
