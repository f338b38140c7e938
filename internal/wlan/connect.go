package wlan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

// ConnectOpen issues an unsecured associate request. It returns once the
// chip accepted the request; the link comes up asynchronously.
func (m *Manager) ConnectOpen(ssid string) error {
	const op = "connect open"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	if err := ValidateSSID(op, ssid); err != nil {
		return err
	}
	return m.associate(op, Credentials{SSID: ssid, Security: transport.SecurityOpen})
}

// ConnectSecure issues a secured associate request. Credentials are
// validated before any chip command is sent.
func (m *Manager) ConnectSecure(ssid, key string, mode transport.Security) error {
	const op = "connect secure"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	creds := Credentials{SSID: ssid, Key: key, Security: mode}
	if err := creds.Validate(op); err != nil {
		return err
	}
	return m.associate(op, creds)
}

func (m *Manager) associate(op string, c Credentials) error {
	var key []byte
	if c.Security != transport.SecurityOpen {
		key = []byte(c.Key)
	}
	return m.runSteps(op, []step{
		m.policyStep(transport.ManualPolicy),
		m.delayStep(m.cfg.SettleDelay),
		{transport.OpConnect, func() error { return m.t.Connect(c.Security, c.SSID, key) }},
	})
}

// ConnectWithRetry associates and waits for the link, repeating the whole
// scan, associate and wait cycle until the link is up. There is no attempt
// limit; ctx is the only way to give up. It returns nil only when the link
// is observed up after an associate request, so an existing link to another
// network never counts.
func (m *Manager) ConnectWithRetry(ctx context.Context, c Credentials) error {
	const op = "connect"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	if c.Open() {
		if err := ValidateSSID(op, c.SSID); err != nil {
			return err
		}
	} else if err := c.Validate(op); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewCanceledError(op, err)
		}
		if err := m.t.Poll(); err != nil {
			logging.Warn("Poll failed", zap.String("op", op), zap.Error(err))
		}

		// Association is unreliable unless a scan cycle precedes it.
		if err := m.Scan(uint32(m.cfg.ScanDuration / time.Millisecond)); err != nil {
			logging.Warn("Pre-connect scan failed", zap.Error(err))
		}
		if err := m.sleep(ctx, op, m.cfg.ScanWait); err != nil {
			return err
		}
		if err := m.StopScan(); err != nil {
			logging.Warn("Pre-connect scan abort failed", zap.Error(err))
		}

		logging.Info("Connecting",
			zap.String("ssid", c.SSID),
			zap.Stringer("security", c.Security),
			zap.Int("attempt", attempt),
		)

		var err error
		if c.Open() {
			err = m.ConnectOpen(c.SSID)
		} else {
			err = m.ConnectSecure(c.SSID, c.Key, c.Security)
		}
		if err != nil {
			if IsCanceled(err) {
				return err
			}
			logging.Warn("Associate request failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		err = m.waitFor(ctx, op, "link up", m.state.LinkUp, m.cfg.ConnectTimeout)
		switch {
		case err == nil:
			logging.Info("Connected", zap.String("ssid", c.SSID), zap.Int("attempt", attempt))
			return nil
		case IsCanceled(err):
			return err
		default:
			logging.Info("Link did not come up, retrying", zap.Int("attempt", attempt))
		}
	}
}

// WaitForDHCP waits up to ConnectTimeout for the DHCP lease.
func (m *Manager) WaitForDHCP(ctx context.Context) error {
	const op = "wait dhcp"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	err := m.waitFor(ctx, op, "DHCP lease", m.state.DHCPBound, m.cfg.ConnectTimeout)
	if err == nil {
		m.state.SetDHCPConfigured(true)
	}
	return err
}
