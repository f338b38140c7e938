package wlan

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/transport/sim"
)

func TestBringUp(t *testing.T) {
	tb := newTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})
	ctx := context.Background()

	if err := tb.m.BringUp(ctx, BringUpOptions{}); err != nil {
		t.Fatalf("BringUp() error = %v", err)
	}
	if !tb.m.Initialized() {
		t.Error("Initialized() = false after BringUp")
	}
	if tb.m.State().LinkUp() {
		t.Error("LinkUp() = true without an associate request")
	}

	want := []string{
		transport.OpStart,
		transport.OpSetPolicy,
		transport.OpDeleteProfile,
		transport.OpSetEventMask,
	}
	if got := tb.chip.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if tb.chip.Mask() != transport.DefaultEventMask {
		t.Errorf("mask = %v, want %v", tb.chip.Mask(), transport.DefaultEventMask)
	}

	tb.chip.ResetCalls()
	if err := tb.m.BringUp(ctx, BringUpOptions{}); err != nil {
		t.Fatalf("second BringUp() error = %v", err)
	}
	if calls := tb.chip.Calls(); len(calls) != 0 {
		t.Errorf("second BringUp() issued %v, want nothing", calls)
	}
}

func TestBringUpClearsStoredProfiles(t *testing.T) {
	tb := newTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})
	tb.chip.AddProfile(sim.Profile{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2})

	if err := tb.m.BringUp(context.Background(), BringUpOptions{}); err != nil {
		t.Fatal(err)
	}
	if p, _ := tb.chip.Profiles(); len(p) != 0 {
		t.Errorf("profiles after manual bring-up = %v, want none", p)
	}
}

func TestBringUpStoredProfile(t *testing.T) {
	tb := newTestbed(t, sim.Options{
		AccessPoints: []sim.AccessPoint{homeNetwork()},
		ConnectDelay: 2 * time.Second,
	})
	tb.chip.AddProfile(sim.Profile{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2})

	err := tb.m.BringUp(context.Background(), BringUpOptions{UseStoredProfile: true})
	if err != nil {
		t.Fatalf("BringUp() error = %v", err)
	}
	if !tb.m.State().LinkUp() {
		t.Error("LinkUp() = false after stored-profile bring-up")
	}
	if tb.chip.Advertised() != DefaultDeviceName {
		t.Errorf("advertised %q, want %q", tb.chip.Advertised(), DefaultDeviceName)
	}
	if tb.chip.Policy() != transport.ProfilePolicy {
		t.Errorf("policy = %+v, want profile policy", tb.chip.Policy())
	}
}

func TestBringUpStoredProfileTimeout(t *testing.T) {
	tb := newTestbed(t, sim.Options{})

	err := tb.m.BringUp(context.Background(), BringUpOptions{UseStoredProfile: true})
	if !IsTimeout(err) {
		t.Fatalf("BringUp() error = %v, want timeout", err)
	}
	if !tb.m.Initialized() {
		t.Error("chip not left initialized after link timeout")
	}
	if got := tb.clock.Elapsed(); got < DefaultConnectTimeout || got > DefaultConnectTimeout+time.Second {
		t.Errorf("waited %v, want about %v", got, DefaultConnectTimeout)
	}
}

func TestBringUpStepFailure(t *testing.T) {
	tests := []struct {
		name   string
		failOp string
	}{
		{"start", transport.OpStart},
		{"policy", transport.OpSetPolicy},
		{"delete profiles", transport.OpDeleteProfile},
		{"event mask", transport.OpSetEventMask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestbed(t, sim.Options{})
			tb.chip.Fail(tt.failOp, -2, 1)

			err := tb.m.BringUp(context.Background(), BringUpOptions{})
			if !IsTransport(err) {
				t.Fatalf("BringUp() error = %v, want transport error", err)
			}
			var werr *Error
			errors.As(err, &werr)
			if werr.Step != tt.failOp || werr.Code != -2 {
				t.Errorf("step = %q code = %d, want %q -2", werr.Step, werr.Code, tt.failOp)
			}
			if tb.m.Initialized() {
				t.Error("Initialized() = true after failed bring-up")
			}
		})
	}
}

func TestOperationsBeforeBringUp(t *testing.T) {
	tb := newTestbed(t, sim.Options{})
	ctx := context.Background()

	checks := []struct {
		name string
		err  error
	}{
		{"disconnect", tb.m.Disconnect()},
		{"delete profiles", tb.m.DeleteStoredProfiles()},
		{"connect open", tb.m.ConnectOpen("cafe")},
		{"connect secure", tb.m.ConnectSecure("cafe", "k", transport.SecurityWPA)},
		{"connect", tb.m.ConnectWithRetry(ctx, Credentials{SSID: "cafe"})},
		{"provisioning", tb.m.StartProvisioning(ctx, false)},
		{"scan", tb.m.Scan(100)},
		{"wait dhcp", tb.m.WaitForDHCP(ctx)},
	}
	for _, c := range checks {
		if !IsNotInitialized(c.err) {
			t.Errorf("%s: error = %v, want not initialized", c.name, c.err)
		}
	}

	if _, err := tb.m.AddressConfig(); !IsNotInitialized(err) {
		t.Errorf("AddressConfig() error = %v, want not initialized", err)
	}
	if _, err := tb.m.ConnectTCP(sim.DefaultLease().IP, 80); !IsNotInitialized(err) {
		t.Errorf("ConnectTCP() error = %v, want not initialized", err)
	}

	if err := tb.m.Reboot(transport.PatchNone); err != nil {
		t.Errorf("Reboot() error = %v, want no-op", err)
	}
	if err := tb.m.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v, want no-op", err)
	}
	if st, err := tb.m.Status(); err != nil || st != transport.StatusDisconnected {
		t.Errorf("Status() = %v, %v, want disconnected", st, err)
	}
	if calls := tb.chip.Calls(); len(calls) != 0 {
		t.Errorf("chip saw %v before bring-up", calls)
	}
}

func TestRebootAndShutdown(t *testing.T) {
	tb := newTestbed(t, sim.Options{})
	if err := tb.m.BringUp(context.Background(), BringUpOptions{}); err != nil {
		t.Fatal(err)
	}

	tb.chip.ResetCalls()
	before := tb.clock.Elapsed()
	if err := tb.m.Reboot(transport.PatchNone); err != nil {
		t.Fatalf("Reboot() error = %v", err)
	}
	if got := tb.clock.Elapsed() - before; got != DefaultRebootDelay {
		t.Errorf("reboot delay = %v, want %v", got, DefaultRebootDelay)
	}
	if want := []string{transport.OpStop, transport.OpStart}; !reflect.DeepEqual(tb.chip.Calls(), want) {
		t.Errorf("calls = %v, want %v", tb.chip.Calls(), want)
	}
	if !tb.m.Initialized() {
		t.Error("Initialized() = false after reboot")
	}

	if err := tb.m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if tb.m.Initialized() || tb.chip.Started() {
		t.Error("chip still up after Shutdown")
	}
	if err := tb.m.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if n := tb.chip.CallCount(transport.OpStop); n != 2 {
		t.Errorf("stop issued %d times, want 2", n)
	}
}

func TestStatus(t *testing.T) {
	tb := newTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})
	ctx := context.Background()
	tb.m.BringUp(ctx, BringUpOptions{})

	if st, _ := tb.m.Status(); st != transport.StatusDisconnected {
		t.Errorf("Status() idle = %v", st)
	}
	if err := tb.m.ConnectWithRetry(ctx, Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2}); err != nil {
		t.Fatal(err)
	}
	if st, _ := tb.m.Status(); st != transport.StatusConnected {
		t.Errorf("Status() linked = %v", st)
	}

	tb.chip.Fail(transport.OpStatus, -1, 1)
	if _, err := tb.m.Status(); !IsTransport(err) {
		t.Errorf("Status() error = %v, want transport error", err)
	}
}

func TestDisconnect(t *testing.T) {
	tb := newTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})
	ctx := context.Background()
	tb.m.BringUp(ctx, BringUpOptions{})

	if err := tb.m.Disconnect(); !IsTransport(err) {
		t.Errorf("Disconnect() while idle error = %v, want transport error", err)
	}

	tb.m.ConnectWithRetry(ctx, Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2})
	if err := tb.m.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	tb.m.Poll()
	if tb.m.State().LinkUp() || tb.m.State().DHCPBound() {
		t.Error("link or DHCP still up after disconnect event")
	}
}

func TestWaitForCanceled(t *testing.T) {
	tb := newTestbed(t, sim.Options{})
	tb.m.BringUp(context.Background(), BringUpOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	tb.clock.After(time.Second, cancel)

	err := tb.m.WaitForDHCP(ctx)
	if !IsCanceled(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitForDHCP() error = %v, want canceled", err)
	}
	if got := tb.clock.Elapsed(); got >= DefaultConnectTimeout {
		t.Errorf("wait ran %v past cancellation", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := (&Config{ConnectTimeout: 3 * time.Second}).withDefaults()
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want kept", cfg.ConnectTimeout)
	}
	if cfg.PollInterval != DefaultPollInterval || cfg.Clock == nil {
		t.Error("unset fields not defaulted")
	}
	if cfg.SettleDelay != 0 {
		t.Errorf("SettleDelay = %v, want zero kept", cfg.SettleDelay)
	}
	if d := (*Config)(nil).withDefaults(); d.DeviceName != DefaultDeviceName {
		t.Errorf("nil config DeviceName = %q", d.DeviceName)
	}
}
