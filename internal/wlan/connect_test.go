package wlan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/transport/sim"
)

func upTestbed(t *testing.T, opts sim.Options) *testbed {
	t.Helper()
	tb := newTestbed(t, opts)
	if err := tb.m.BringUp(context.Background(), BringUpOptions{}); err != nil {
		t.Fatalf("BringUp() error = %v", err)
	}
	tb.chip.ResetCalls()
	return tb
}

func TestConnectSecureValidation(t *testing.T) {
	tests := []struct {
		name string
		ssid string
		key  string
		mode transport.Security
	}{
		{"unknown mode", homeSSID, homeKey, transport.Security(5)},
		{"empty ssid", "", homeKey, transport.SecurityWPA2},
		{"long ssid", strings.Repeat("s", 33), homeKey, transport.SecurityWPA2},
		{"long key", homeSSID, strings.Repeat("k", 33), transport.SecurityWPA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := upTestbed(t, sim.Options{})
			err := tb.m.ConnectSecure(tt.ssid, tt.key, tt.mode)
			if !IsInvalidArgument(err) {
				t.Fatalf("ConnectSecure() error = %v, want invalid argument", err)
			}
			if calls := tb.chip.Calls(); len(calls) != 0 {
				t.Errorf("chip saw %v for rejected credentials", calls)
			}
		})
	}
}

func TestConnectSecureLimits(t *testing.T) {
	tb := upTestbed(t, sim.Options{})
	ssid := strings.Repeat("s", 32)
	key := strings.Repeat("k", 32)
	if err := tb.m.ConnectSecure(ssid, key, transport.SecurityWPA2); err != nil {
		t.Errorf("ConnectSecure() with 32-byte ssid and key error = %v", err)
	}
}

func TestConnectOpenSequence(t *testing.T) {
	tb := upTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{{SSID: "cafe"}}})
	start := tb.clock.Elapsed()

	if err := tb.m.ConnectOpen("cafe"); err != nil {
		t.Fatalf("ConnectOpen() error = %v", err)
	}
	want := []string{transport.OpSetPolicy, transport.OpConnect}
	got := tb.chip.Calls()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if d := tb.clock.Elapsed() - start; d != DefaultSettleDelay {
		t.Errorf("settle delay = %v, want %v", d, DefaultSettleDelay)
	}
	if tb.chip.Policy() != transport.ManualPolicy {
		t.Errorf("policy = %+v, want manual", tb.chip.Policy())
	}

	if err := tb.m.ConnectOpen(""); !IsInvalidArgument(err) {
		t.Errorf("ConnectOpen(\"\") error = %v, want invalid argument", err)
	}
}

func TestConnectWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		drops     int
		creds     Credentials
		wantCalls int
	}{
		{"first attempt", 0, Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2}, 1},
		{"dropped requests", 2, Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2}, 3},
		{"open network", 1, Credentials{SSID: "cafe"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := upTestbed(t, sim.Options{
				AccessPoints: []sim.AccessPoint{homeNetwork(), {SSID: "cafe"}},
				DropConnects: tt.drops,
			})

			if err := tb.m.ConnectWithRetry(context.Background(), tt.creds); err != nil {
				t.Fatalf("ConnectWithRetry() error = %v", err)
			}
			if !tb.m.State().LinkUp() {
				t.Fatal("returned without the link up")
			}
			if n := tb.chip.CallCount(transport.OpConnect); n != tt.wantCalls {
				t.Errorf("associate requests = %d, want %d", n, tt.wantCalls)
			}
			if ssid, _ := tb.chip.Associated(); ssid != tt.creds.SSID {
				t.Errorf("associated with %q, want %q", ssid, tt.creds.SSID)
			}
		})
	}
}

func TestConnectWithRetryScansFirst(t *testing.T) {
	tb := upTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})
	err := tb.m.ConnectWithRetry(context.Background(), Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2})
	if err != nil {
		t.Fatal(err)
	}
	calls := tb.chip.Calls()
	scan, connect := -1, -1
	for i, c := range calls {
		if c == transport.OpSetScanParams && scan < 0 {
			scan = i
		}
		if c == transport.OpConnect {
			connect = i
		}
	}
	if scan < 0 || scan > connect {
		t.Errorf("calls = %v, want a scan before the associate request", calls)
	}
	if n := tb.chip.CallCount(transport.OpSetScanParams); n != 2 {
		t.Errorf("scan param calls = %d, want start and abort", n)
	}
}

func TestConnectWithRetrySwitchesNetwork(t *testing.T) {
	tb := upTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork(), {SSID: "cafe"}}})
	home := Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2}
	if err := tb.m.ConnectWithRetry(context.Background(), home); err != nil {
		t.Fatal(err)
	}
	if ssid, _ := tb.chip.Associated(); ssid != homeSSID {
		t.Fatalf("associated = %q, want %q", ssid, homeSSID)
	}

	tb.chip.ResetCalls()
	if err := tb.m.ConnectWithRetry(context.Background(), Credentials{SSID: "cafe"}); err != nil {
		t.Fatalf("ConnectWithRetry(cafe) error = %v", err)
	}
	if n := tb.chip.CallCount(transport.OpConnect); n == 0 {
		t.Error("no associate request with a link to another network up")
	}
	if ssid, ok := tb.chip.Associated(); !ok || ssid != "cafe" {
		t.Errorf("associated = %q, %v, want cafe", ssid, ok)
	}
	if !tb.m.State().LinkUp() {
		t.Error("link down after switching networks")
	}
}

func TestConnectWithRetryRejectsBadCredentials(t *testing.T) {
	tb := upTestbed(t, sim.Options{})
	err := tb.m.ConnectWithRetry(context.Background(), Credentials{SSID: homeSSID, Key: homeKey, Security: transport.Security(9)})
	if !IsInvalidArgument(err) {
		t.Fatalf("ConnectWithRetry() error = %v, want invalid argument", err)
	}
	if calls := tb.chip.Calls(); len(calls) != 0 {
		t.Errorf("chip saw %v", calls)
	}
}

func TestConnectWithRetryCanceled(t *testing.T) {
	tb := upTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})

	ctx, cancel := context.WithCancel(context.Background())
	tb.clock.After(time.Minute, cancel)

	// Wrong key: the link never comes up, so only cancellation ends the loop.
	err := tb.m.ConnectWithRetry(ctx, Credentials{SSID: homeSSID, Key: "wrong", Security: transport.SecurityWPA2})
	if !IsCanceled(err) {
		t.Fatalf("ConnectWithRetry() error = %v, want canceled", err)
	}
	if n := tb.chip.CallCount(transport.OpConnect); n < 2 {
		t.Errorf("associate requests = %d, want several before cancellation", n)
	}
	if tb.m.State().LinkUp() {
		t.Error("link up with the wrong key")
	}
}

func TestConnectWithRetrySurvivesCommandFailures(t *testing.T) {
	tb := upTestbed(t, sim.Options{AccessPoints: []sim.AccessPoint{homeNetwork()}})
	tb.chip.Fail(transport.OpConnect, -1, 2)
	tb.chip.Fail(transport.OpSetScanParams, -1, 1)

	err := tb.m.ConnectWithRetry(context.Background(), Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2})
	if err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if n := tb.chip.CallCount(transport.OpConnect); n != 3 {
		t.Errorf("associate requests = %d, want 3", n)
	}
}

func TestWaitForDHCP(t *testing.T) {
	tb := upTestbed(t, sim.Options{
		AccessPoints: []sim.AccessPoint{homeNetwork()},
		DHCPDelay:    3 * time.Second,
	})
	ctx := context.Background()
	if err := tb.m.ConnectWithRetry(ctx, Credentials{SSID: homeSSID, Key: homeKey, Security: transport.SecurityWPA2}); err != nil {
		t.Fatal(err)
	}
	if tb.m.State().DHCPBound() {
		t.Fatal("DHCP bound before DHCPDelay")
	}
	if err := tb.m.WaitForDHCP(ctx); err != nil {
		t.Fatalf("WaitForDHCP() error = %v", err)
	}
	if !tb.m.State().DHCPConfigured() {
		t.Error("DHCPConfigured() = false after WaitForDHCP")
	}
}
