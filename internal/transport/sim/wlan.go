package sim

import (
	"github.com/muurk/simplelink/internal/transport"
)

// Start powers the radio up. With a profile policy the chip reconnects from
// its stored profiles.
func (c *Chip) Start(patch transport.PatchMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpStart); err != nil {
		return err
	}
	c.started = true
	c.emit(c.now(), transport.Event{Kind: transport.EventInit})
	if c.policy.UseProfiles {
		c.autoConnect()
	}
	return nil
}

// Stop powers the radio down. Association, sockets and queued events are
// lost without notification.
func (c *Chip) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpStop); err != nil {
		return err
	}
	c.started = false
	c.mask = 0
	c.assoc = nil
	c.advertised = ""
	c.scanning = false
	c.scanTable = nil
	c.listening = false
	c.received = nil
	c.pending = nil
	for i, s := range c.sockets {
		if s != nil {
			s.wake()
			c.sockets[i] = nil
		}
	}
	return nil
}

// SetEventMask sets the suppressed event kinds.
func (c *Chip) SetEventMask(m transport.EventMask) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpSetEventMask); err != nil {
		return err
	}
	if !c.started {
		return callErr(transport.OpSetEventMask, "radio is stopped")
	}
	c.mask = m
	return nil
}

// SetConnectionPolicy stores the policy. A profile policy reconnects an idle
// chip right away.
func (c *Chip) SetConnectionPolicy(p transport.Policy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpSetPolicy); err != nil {
		return err
	}
	if !c.started {
		return callErr(transport.OpSetPolicy, "radio is stopped")
	}
	c.policy = p
	if p.UseProfiles && c.assoc == nil {
		c.autoConnect()
	}
	return nil
}

// DeleteProfile removes one stored profile, or all of them for
// transport.DeleteAllProfiles.
func (c *Chip) DeleteProfile(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpDeleteProfile); err != nil {
		return err
	}
	if index == transport.DeleteAllProfiles {
		if err := c.store.SaveProfiles(nil); err != nil {
			return callErr(transport.OpDeleteProfile, "%v", err)
		}
		return nil
	}
	profiles, err := c.store.Profiles()
	if err != nil {
		return callErr(transport.OpDeleteProfile, "%v", err)
	}
	if index < 0 || index >= len(profiles) {
		return callErr(transport.OpDeleteProfile, "no profile %d", index)
	}
	profiles = append(profiles[:index], profiles[index+1:]...)
	if err := c.store.SaveProfiles(profiles); err != nil {
		return callErr(transport.OpDeleteProfile, "%v", err)
	}
	return nil
}

// Connect issues an associate request. The request is accepted even when no
// network matches; the link then simply never comes up.
func (c *Chip) Connect(sec transport.Security, ssid string, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpConnect); err != nil {
		return err
	}
	if !c.started {
		return callErr(transport.OpConnect, "radio is stopped")
	}
	if c.dropsLeft > 0 {
		c.dropsLeft--
		return nil
	}
	if ap, ok := c.findAP(ssid); ok && ap.accepts(sec, string(key)) {
		c.associate(ap)
	}
	return nil
}

// Disconnect drops the association. It fails when there is none.
func (c *Chip) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpDisconnect); err != nil {
		return err
	}
	if c.assoc == nil {
		return callErr(transport.OpDisconnect, "not associated")
	}
	c.disassociate()
	return nil
}

// SetScanParams starts a scan lasting p.Duration, or aborts one for zero.
// The scan table is filled from the access points in range.
func (c *Chip) SetScanParams(p transport.ScanParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpSetScanParams); err != nil {
		return err
	}
	if !c.started {
		return callErr(transport.OpSetScanParams, "radio is stopped")
	}
	if p.Duration == 0 {
		c.scanning = false
		return nil
	}
	c.scanning = true
	c.scanEnd = c.now().Add(p.Duration)
	aps := c.opts.AccessPoints
	c.scanTable = make([]transport.ScanRecord, 0, len(aps))
	for _, ap := range aps {
		c.scanTable = append(c.scanTable,
			transport.EncodeScanRecord(uint32(len(aps)), ap.SSID, ap.Security, ap.RSSI, true))
	}
	c.scanCursor = 0
	return nil
}

// ScanResult returns the next scan table entry. Past the end it returns an
// invalid record with a zero count.
func (c *Chip) ScanResult() (transport.ScanRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpScanResult); err != nil {
		return transport.ScanRecord{}, err
	}
	if !c.started {
		return transport.ScanRecord{}, callErr(transport.OpScanResult, "radio is stopped")
	}
	if c.scanCursor >= len(c.scanTable) {
		return transport.ScanRecord{}, nil
	}
	rec := c.scanTable[c.scanCursor]
	c.scanCursor++
	return rec, nil
}

// Status reports the radio status.
func (c *Chip) Status() (transport.ChipStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpStatus); err != nil {
		return transport.StatusDisconnected, err
	}
	now := c.now()
	switch {
	case !c.started:
		return transport.StatusDisconnected, nil
	case c.linkUp(now):
		return transport.StatusConnected, nil
	case c.assoc != nil:
		return transport.StatusConnecting, nil
	case c.scanning:
		return transport.StatusScanning, nil
	}
	return transport.StatusDisconnected, nil
}

// Profiles returns the stored profiles.
func (c *Chip) Profiles() ([]Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Profiles()
}

// AddProfile stores a profile as if it had been provisioned earlier.
func (c *Chip) AddProfile(p Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addProfile(p)
}

// addProfile appends p, replacing a profile for the same SSID. Callers hold
// c.mu.
func (c *Chip) addProfile(p Profile) error {
	profiles, err := c.store.Profiles()
	if err != nil {
		return err
	}
	out := profiles[:0]
	for _, q := range profiles {
		if q.SSID != p.SSID {
			out = append(out, q)
		}
	}
	return c.store.SaveProfiles(append(out, p))
}
