package wlan

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/transport/sim"
)

// fakeClock advances only when slept on, so every bounded wait runs
// instantly.
type fakeClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	hooks []clockHook
}

type clockHook struct {
	at time.Time
	fn func()
}

func newFakeClock() *fakeClock {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeClock{start: t0, now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	keep := c.hooks[:0]
	for _, h := range c.hooks {
		if !h.at.After(c.now) {
			due = append(due, h.fn)
		} else {
			keep = append(keep, h)
		}
	}
	c.hooks = keep
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

// After runs fn from within Sleep once d of fake time has passed.
func (c *fakeClock) After(d time.Duration, fn func()) {
	c.mu.Lock()
	c.hooks = append(c.hooks, clockHook{at: c.now.Add(d), fn: fn})
	c.mu.Unlock()
}

// Elapsed returns the fake time passed since creation.
func (c *fakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

type testbed struct {
	m     *Manager
	chip  *sim.Chip
	clock *fakeClock
}

func newTestbed(t *testing.T, opts sim.Options) *testbed {
	t.Helper()
	logging.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logging.SetLogger(nil) })

	clk := newFakeClock()
	opts.Now = clk.Now
	if opts.RecvTimeout == 0 {
		opts.RecvTimeout = 50 * time.Millisecond
	}
	chip := sim.New(opts)

	cfg := DefaultConfig()
	cfg.Clock = clk
	return &testbed{m: New(chip, cfg), chip: chip, clock: clk}
}

const (
	homeSSID = "home"
	homeKey  = "correct horse"
)

func homeNetwork() sim.AccessPoint {
	return sim.AccessPoint{SSID: homeSSID, Security: transport.SecurityWPA2, Key: homeKey, RSSI: 50}
}
