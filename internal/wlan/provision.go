package wlan

import (
	"context"

	"go.uber.org/zap"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

// StartProvisioning runs the SmartConfig flow: it drops any association,
// restarts the radio, stores the AES key, opens the listen window and waits
// up to ProvisioningTimeout for credentials. The chip then reconnects from
// the provisioned profile and StartProvisioning waits for the link like
// BringUp does.
//
// With decrypt set the received credentials are decrypted on the chip with
// the stored key before the profile is written.
//
// The first failing chip command aborts the flow with a Transport error
// naming that command. Nothing is rolled back.
func (m *Manager) StartProvisioning(ctx context.Context, decrypt bool) error {
	const op = "provisioning"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}

	prefix, key, err := m.provisioningMaterial(op)
	if err != nil {
		return err
	}

	m.state.Reset()

	if err := m.runSteps(op, []step{
		m.policyStep(transport.ManualPolicy),
		m.deleteProfilesStep(),
	}); err != nil {
		return err
	}

	if err := m.disconnectUntilDown(ctx, op); err != nil {
		return err
	}

	if err := m.runSteps(op, []step{
		{transport.OpStop, m.t.Stop},
		m.delayStep(m.cfg.RadioRestartDelay),
		{transport.OpStart, func() error { return m.t.Start(transport.PatchNone) }},
		{transport.OpCreateNVMemEntry, func() error {
			return m.t.CreateNVMemEntry(transport.NVMemAESKeyFileID, transport.AESKeySize)
		}},
		{transport.OpWriteAESKey, func() error { return m.t.WriteAESKey(key) }},
		{transport.OpSetPrefix, func() error { return m.t.SetProvisioningPrefix(prefix) }},
		{transport.OpStartProvisioning, m.t.StartProvisioning},
	}); err != nil {
		return err
	}

	logging.Info("Provisioning window open",
		zap.String("prefix", m.cfg.ProvisioningPrefix),
		zap.Duration("timeout", m.cfg.ProvisioningTimeout),
	)

	// The listen window ends on the stop signal raised with the completion
	// event.
	if err := m.waitFor(ctx, op, "provisioning data", m.state.StopProvisioning, m.cfg.ProvisioningTimeout); err != nil {
		return err
	}
	logging.Info("Provisioning data received")

	var steps []step
	if decrypt {
		steps = append(steps, step{transport.OpProcessProvision, m.t.ProcessProvisioning})
	}
	steps = append(steps,
		m.policyStep(transport.ProfilePolicy),
		step{transport.OpStop, m.t.Stop},
		m.delayStep(m.cfg.RadioRestartDelay),
		step{transport.OpStart, func() error { return m.t.Start(transport.PatchNone) }},
		m.eventMaskStep(),
	)
	if err := m.runSteps(op, steps); err != nil {
		return err
	}

	if err := m.waitFor(ctx, op, "link up", m.state.LinkUp, m.cfg.ConnectTimeout); err != nil {
		return err
	}
	m.advertise()
	return nil
}

// disconnectUntilDown repeats disconnect until the link-down event has been
// delivered.
func (m *Manager) disconnectUntilDown(ctx context.Context, op string) error {
	if err := m.t.Poll(); err != nil {
		logging.Warn("Poll failed", zap.String("op", op), zap.Error(err))
	}
	for m.state.LinkUp() {
		if err := ctx.Err(); err != nil {
			return NewCanceledError(op, err)
		}
		if err := m.t.Poll(); err != nil {
			logging.Warn("Poll failed", zap.String("op", op), zap.Error(err))
		}
		if err := m.runSteps(op, []step{{transport.OpDisconnect, m.t.Disconnect}}); err != nil {
			return err
		}
		m.clock.Sleep(m.cfg.PollInterval)
		if err := m.t.Poll(); err != nil {
			logging.Warn("Poll failed", zap.String("op", op), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) provisioningMaterial(op string) ([3]byte, [transport.AESKeySize]byte, error) {
	var prefix [3]byte
	var key [transport.AESKeySize]byte
	if len(m.cfg.ProvisioningPrefix) != len(prefix) {
		return prefix, key, NewInvalidArgumentError(op, "provisioning prefix must be 3 bytes")
	}
	if len(m.cfg.ProvisioningKey) != len(key) {
		return prefix, key, NewInvalidArgumentError(op, "provisioning key must be 16 bytes")
	}
	copy(prefix[:], m.cfg.ProvisioningPrefix)
	copy(key[:], m.cfg.ProvisioningKey)
	return prefix, key, nil
}
