package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge represents a discovered bridge daemon on the network
type Bridge struct {
	// Name is the mDNS service instance name (e.g., "kitchen")
	Name string

	// Hostname is the mDNS hostname of the machine running the bridge
	Hostname string

	// IP is the bridge address, IPv4 when one was advertised
	IP string

	// Port is the websocket listen port
	Port int

	// Metadata contains the TXT record data.
	// Fields: "path=/bridge", "chip=sim", "version=...", "tls=1"
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Bridge %s (%s) at %s", b.Name, b.Hostname, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)))
}

// URL returns the websocket URL of the bridge endpoint
func (b *Bridge) URL() string {
	scheme := "ws"
	if b.GetMetadata("tls") == "1" {
		scheme = "wss"
	}
	path := b.GetMetadata("path")
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)), path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
