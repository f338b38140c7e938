package wlan

import (
	"time"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

// step is one chip command of a multi-step flow.
type step struct {
	name string
	run  func() error
}

// runSteps executes steps in order and stops at the first failure, which is
// returned as a Transport error naming the step. Earlier steps are not
// rolled back.
func (m *Manager) runSteps(op string, steps []step) error {
	for _, s := range steps {
		err := s.run()
		if s.name != "" {
			logging.LogTransportCall(s.name, err)
		}
		if err != nil {
			return NewTransportError(op, s.name, err)
		}
	}
	return nil
}

func (m *Manager) policyStep(p transport.Policy) step {
	return step{transport.OpSetPolicy, func() error {
		return m.t.SetConnectionPolicy(p)
	}}
}

func (m *Manager) deleteProfilesStep() step {
	return step{transport.OpDeleteProfile, func() error {
		return m.t.DeleteProfile(transport.DeleteAllProfiles)
	}}
}

func (m *Manager) eventMaskStep() step {
	return step{transport.OpSetEventMask, func() error {
		return m.t.SetEventMask(transport.DefaultEventMask)
	}}
}

// delayStep sleeps on the manager clock. It never fails.
func (m *Manager) delayStep(d time.Duration) step {
	return step{"", func() error {
		m.clock.Sleep(d)
		return nil
	}}
}
