package wlan

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/simplelink/internal/linkstate"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

// Manager drives one chip: bring-up, association, provisioning and the
// socket factory. It is meant for a single foreground goroutine; only
// State() may be read from elsewhere.
type Manager struct {
	t     transport.Transport
	cfg   *Config
	clock Clock
	state *linkstate.State

	initialized atomic.Bool

	// scan cursor, see NextScanResult
	scanRecord transport.ScanRecord
}

// BringUpOptions selects how BringUp starts the chip.
type BringUpOptions struct {
	Patch transport.PatchMode
	// UseStoredProfile lets the chip reconnect from its stored profiles and
	// waits for the link. Otherwise the profiles are deleted and the chip
	// stays idle.
	UseStoredProfile bool
}

// New creates a Manager and registers its link state as the transport's
// event handler. A nil cfg selects DefaultConfig.
func New(t transport.Transport, cfg *Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		t:     t,
		cfg:   cfg,
		clock: cfg.Clock,
		state: linkstate.New(),
	}
	t.SetEventHandler(m.state.HandleEvent)
	return m
}

// State returns the link state fed by the transport's events.
func (m *Manager) State() *linkstate.State {
	return m.state
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return *m.cfg
}

// Initialized reports whether BringUp has completed.
func (m *Manager) Initialized() bool {
	return m.initialized.Load()
}

// BringUp starts the chip. It returns immediately if the chip is already up.
//
// With UseStoredProfile the chip reconnects from its profile store and
// BringUp waits up to ConnectTimeout for the link. On timeout the chip stays
// initialized and a Timeout error is returned.
func (m *Manager) BringUp(ctx context.Context, opts BringUpOptions) error {
	const op = "bring up"

	if m.initialized.Load() {
		return nil
	}

	m.state.Reset()

	steps := []step{
		{transport.OpStart, func() error { return m.t.Start(opts.Patch) }},
	}
	if opts.UseStoredProfile {
		steps = append(steps, m.policyStep(transport.ProfilePolicy))
	} else {
		steps = append(steps,
			m.policyStep(transport.ManualPolicy),
			m.deleteProfilesStep(),
		)
	}
	steps = append(steps, m.eventMaskStep())

	if err := m.runSteps(op, steps); err != nil {
		return err
	}
	m.initialized.Store(true)

	logging.Info("Chip started",
		zap.Uint8("patch", uint8(opts.Patch)),
		zap.Bool("stored_profile", opts.UseStoredProfile),
	)

	if !opts.UseStoredProfile {
		return nil
	}

	if err := m.waitFor(ctx, op, "link up", m.state.LinkUp, m.cfg.ConnectTimeout); err != nil {
		return err
	}
	m.advertise()
	return nil
}

// Disconnect drops the current association.
func (m *Manager) Disconnect() error {
	const op = "disconnect"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	return m.runSteps(op, []step{{transport.OpDisconnect, m.t.Disconnect}})
}

// DeleteStoredProfiles switches to manual policy and clears the chip's
// profile store.
func (m *Manager) DeleteStoredProfiles() error {
	const op = "delete profiles"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	return m.runSteps(op, []step{
		m.policyStep(transport.ManualPolicy),
		m.deleteProfilesStep(),
	})
}

// Reboot stops the radio, waits RebootDelay and starts it again. It is a
// no-op on a chip that was never brought up.
func (m *Manager) Reboot(patch transport.PatchMode) error {
	if !m.initialized.Load() {
		return nil
	}
	m.state.Reset()
	return m.runSteps("reboot", []step{
		{transport.OpStop, m.t.Stop},
		m.delayStep(m.cfg.RebootDelay),
		{transport.OpStart, func() error { return m.t.Start(patch) }},
	})
}

// Shutdown stops the radio. It is a no-op on a chip that was never brought
// up. The manager must be brought up again afterwards.
func (m *Manager) Shutdown() error {
	if !m.initialized.Load() {
		return nil
	}
	err := m.runSteps("shutdown", []step{{transport.OpStop, m.t.Stop}})
	m.initialized.Store(false)
	m.state.Reset()
	return err
}

// Status returns the chip's radio status, or StatusDisconnected before
// BringUp.
func (m *Manager) Status() (transport.ChipStatus, error) {
	if !m.initialized.Load() {
		return transport.StatusDisconnected, nil
	}
	st, err := m.t.Status()
	logging.LogTransportCall(transport.OpStatus, err)
	if err != nil {
		return transport.StatusDisconnected, NewTransportError("status", transport.OpStatus, err)
	}
	if st > transport.StatusConnected {
		st = transport.StatusDisconnected
	}
	return st, nil
}

// Poll services pending chip events once.
func (m *Manager) Poll() error {
	return m.t.Poll()
}

// waitFor is the bounded poll-wait: poll, re-check cond, sleep one interval,
// until cond holds, budget is spent or ctx ends.
func (m *Manager) waitFor(ctx context.Context, op, what string, cond func() bool, budget time.Duration) error {
	start := m.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return NewCanceledError(op, err)
		}
		if err := m.t.Poll(); err != nil {
			logging.Warn("Poll failed during wait",
				zap.String("op", op),
				zap.Error(err),
			)
		}
		if cond() {
			return nil
		}
		if m.clock.Now().Sub(start) >= budget {
			logging.Warn("Wait timed out",
				zap.String("op", op),
				zap.String("waiting_for", what),
				zap.Duration("budget", budget),
			)
			return NewTimeoutError(op, what, budget)
		}
		m.clock.Sleep(m.cfg.PollInterval)
	}
}

// sleep waits d on the clock unless ctx ends first. The clock is checked in
// poll-interval slices so a fake clock never blocks.
func (m *Manager) sleep(ctx context.Context, op string, d time.Duration) error {
	start := m.clock.Now()
	for m.clock.Now().Sub(start) < d {
		if err := ctx.Err(); err != nil {
			return NewCanceledError(op, err)
		}
		left := d - m.clock.Now().Sub(start)
		if left > m.cfg.PollInterval {
			left = m.cfg.PollInterval
		}
		m.clock.Sleep(left)
	}
	return nil
}

// advertise announces DeviceName over mDNS once DHCP is bound. Failures are
// logged only.
func (m *Manager) advertise() {
	m.clock.Sleep(m.cfg.PostConnectDelay)
	if !m.state.DHCPBound() {
		return
	}
	err := m.t.MDNSAdvertise(true, m.cfg.DeviceName)
	logging.LogTransportCall(transport.OpMDNSAdvertise, err)
}
