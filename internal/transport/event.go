package transport

import (
	"fmt"
	"strings"
)

// EventKind identifies an unsolicited chip event.
type EventKind uint8

const (
	EventLinkConnected EventKind = iota
	EventLinkDisconnected
	EventDHCPAcquired
	EventProvisioningDone
	EventShutdownPermitted
	EventPingReport
	EventPeerClose
	EventKeepalive
	EventInit
)

func (k EventKind) String() string {
	switch k {
	case EventLinkConnected:
		return "link_connected"
	case EventLinkDisconnected:
		return "link_disconnected"
	case EventDHCPAcquired:
		return "dhcp_acquired"
	case EventProvisioningDone:
		return "provisioning_done"
	case EventShutdownPermitted:
		return "shutdown_permitted"
	case EventPingReport:
		return "ping_report"
	case EventPeerClose:
		return "peer_close"
	case EventKeepalive:
		return "keepalive"
	case EventInit:
		return "init"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Mask returns the EventMask bit for k.
func (k EventKind) Mask() EventMask {
	return 1 << EventMask(k)
}

// Event is one unsolicited chip event.
type Event struct {
	Kind EventKind
	// Socket is the handle for EventPeerClose.
	Socket int32
	// Ping is set for EventPingReport.
	Ping PingReport
}

// EventMask is the set of event kinds the chip must suppress.
type EventMask uint32

// DefaultEventMask suppresses the init and keepalive events. Link, DHCP,
// ping and peer-close events stay enabled.
const DefaultEventMask = EventMask(1<<EventInit | 1<<EventKeepalive)

// Suppresses reports whether events of kind k are masked out.
func (m EventMask) Suppresses(k EventKind) bool {
	return m&k.Mask() != 0
}

func (m EventMask) String() string {
	var names []string
	for k := EventLinkConnected; k <= EventInit; k++ {
		if m.Suppresses(k) {
			names = append(names, k.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
