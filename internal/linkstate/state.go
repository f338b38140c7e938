// Package linkstate projects asynchronous chip events onto a set of flags
// read by the connection manager and socket clients.
//
// A State is updated only through HandleEvent, which the transport invokes
// from inside Poll. Flags are single atomic words so a reader on another
// goroutine never sees a torn value. The ping report is a multi-field value
// and is copied out under a lock.
package linkstate

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

// State is the link state of one chip.
type State struct {
	linkUp            atomic.Bool
	dhcpBound         atomic.Bool
	dhcpConfigured    atomic.Bool
	provisioningDone  atomic.Bool
	stopProvisioning  atomic.Bool
	shutdownPermitted atomic.Bool

	closed [transport.MaxSockets]atomic.Bool

	pingMu      sync.Mutex
	ping        transport.PingReport
	pingReports uint32
}

// New returns a State with every flag cleared.
func New() *State {
	return &State{}
}

// HandleEvent applies one chip event. It is the transport's event handler.
func (s *State) HandleEvent(ev transport.Event) {
	logging.LogChipEvent(ev.Kind.String(), zap.Int32("socket", ev.Socket))

	switch ev.Kind {
	case transport.EventLinkConnected:
		s.linkUp.Store(true)

	case transport.EventLinkDisconnected:
		s.linkUp.Store(false)
		s.dhcpBound.Store(false)
		s.dhcpConfigured.Store(false)

	case transport.EventDHCPAcquired:
		s.dhcpBound.Store(true)

	case transport.EventProvisioningDone:
		s.provisioningDone.Store(true)
		s.stopProvisioning.Store(true)

	case transport.EventShutdownPermitted:
		s.shutdownPermitted.Store(true)

	case transport.EventPingReport:
		s.pingMu.Lock()
		s.ping = ev.Ping
		s.pingReports++
		s.pingMu.Unlock()

	case transport.EventPeerClose:
		if ev.Socket >= 0 && ev.Socket < transport.MaxSockets {
			s.closed[ev.Socket].Store(true)
		}
	}
}

// Reset clears the link, DHCP and provisioning flags.
func (s *State) Reset() {
	s.linkUp.Store(false)
	s.dhcpBound.Store(false)
	s.dhcpConfigured.Store(false)
	s.provisioningDone.Store(false)
	s.stopProvisioning.Store(false)
	s.shutdownPermitted.Store(false)
}

func (s *State) LinkUp() bool            { return s.linkUp.Load() }
func (s *State) DHCPBound() bool         { return s.dhcpBound.Load() }
func (s *State) ProvisioningDone() bool  { return s.provisioningDone.Load() }
func (s *State) StopProvisioning() bool  { return s.stopProvisioning.Load() }
func (s *State) ShutdownPermitted() bool { return s.shutdownPermitted.Load() }

// DHCPConfigured reports whether the host has applied the DHCP lease. It is
// cleared on disconnect.
func (s *State) DHCPConfigured() bool { return s.dhcpConfigured.Load() }

// SetDHCPConfigured marks the DHCP lease as applied.
func (s *State) SetDHCPConfigured(v bool) { s.dhcpConfigured.Store(v) }

// PingReport returns a copy of the last ping report and the number of
// reports received since the last ResetPing.
func (s *State) PingReport() (transport.PingReport, uint32) {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	return s.ping, s.pingReports
}

// ResetPing clears the report counter before a new ping burst.
func (s *State) ResetPing() {
	s.pingMu.Lock()
	s.ping = transport.PingReport{}
	s.pingReports = 0
	s.pingMu.Unlock()
}

// PeerClosed reports whether the peer of socket sd has closed.
func (s *State) PeerClosed(sd int32) bool {
	if sd < 0 || sd >= transport.MaxSockets {
		return false
	}
	return s.closed[sd].Load()
}

// ClearPeerClosed consumes the close flag of socket sd.
func (s *State) ClearPeerClosed(sd int32) {
	if sd < 0 || sd >= transport.MaxSockets {
		return
	}
	s.closed[sd].Store(false)
}

// Snapshot is a point-in-time copy of the flags.
type Snapshot struct {
	LinkUp            bool
	DHCPBound         bool
	ProvisioningDone  bool
	ShutdownPermitted bool
	PingReports       uint32
	ClosedSockets     []int32
}

// Snapshot copies the current flags.
func (s *State) Snapshot() Snapshot {
	_, n := s.PingReport()
	snap := Snapshot{
		LinkUp:            s.LinkUp(),
		DHCPBound:         s.DHCPBound(),
		ProvisioningDone:  s.ProvisioningDone(),
		ShutdownPermitted: s.ShutdownPermitted(),
		PingReports:       n,
	}
	for i := range s.closed {
		if s.closed[i].Load() {
			snap.ClosedSockets = append(snap.ClosedSockets, int32(i))
		}
	}
	return snap
}
