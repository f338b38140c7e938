package sim

import (
	"errors"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestChip(t *testing.T, opts Options) (*Chip, *testClock, *[]transport.Event) {
	t.Helper()
	clk := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts.Now = clk.Now
	c := New(opts)
	var events []transport.Event
	c.SetEventHandler(func(ev transport.Event) {
		events = append(events, ev)
	})
	return c, clk, &events
}

func kinds(events []transport.Event) []transport.EventKind {
	out := make([]transport.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestConnectSchedulesLinkAndDHCP(t *testing.T) {
	c, clk, events := newTestChip(t, Options{
		AccessPoints: []AccessPoint{{SSID: "home", Security: transport.SecurityWPA2, Key: "secret"}},
		ConnectDelay: 100 * time.Millisecond,
		DHCPDelay:    50 * time.Millisecond,
	})

	if err := c.Start(transport.PatchNone); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.SetEventMask(transport.DefaultEventMask); err != nil {
		t.Fatalf("SetEventMask() error = %v", err)
	}
	if err := c.Connect(transport.SecurityWPA2, "home", []byte("secret")); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c.Poll()
	if len(*events) != 0 {
		t.Fatalf("events before ConnectDelay = %v, want none (init is masked)", kinds(*events))
	}
	if st, _ := c.Status(); st != transport.StatusConnecting {
		t.Errorf("Status() = %v, want connecting", st)
	}

	clk.Advance(100 * time.Millisecond)
	c.Poll()
	if got := kinds(*events); len(got) != 1 || got[0] != transport.EventLinkConnected {
		t.Fatalf("events = %v, want [link_connected]", got)
	}

	cfg, _ := c.IPConfig()
	if cfg.IP != netip.IPv4Unspecified() {
		t.Errorf("IP before DHCP = %v, want 0.0.0.0", cfg.IP)
	}

	clk.Advance(50 * time.Millisecond)
	c.Poll()
	if got := kinds(*events); len(got) != 2 || got[1] != transport.EventDHCPAcquired {
		t.Fatalf("events = %v, want DHCP second", got)
	}
	cfg, _ = c.IPConfig()
	if cfg.IP != DefaultLease().IP || cfg.SSID != "home" {
		t.Errorf("IPConfig() = %v %q, want lease for home", cfg.IP, cfg.SSID)
	}
}

func TestConnectWrongKey(t *testing.T) {
	c, clk, events := newTestChip(t, Options{
		AccessPoints: []AccessPoint{{SSID: "home", Security: transport.SecurityWPA2, Key: "secret"}},
	})
	c.Start(transport.PatchNone)
	if err := c.Connect(transport.SecurityWPA2, "home", []byte("wrong")); err != nil {
		t.Fatalf("Connect() error = %v, want request accepted", err)
	}
	clk.Advance(time.Second)
	c.Poll()
	for _, ev := range *events {
		if ev.Kind == transport.EventLinkConnected {
			t.Fatal("link came up with the wrong key")
		}
	}
}

func TestDropConnects(t *testing.T) {
	c, _, events := newTestChip(t, Options{
		AccessPoints: []AccessPoint{{SSID: "cafe"}},
		DropConnects: 2,
	})
	c.Start(transport.PatchNone)
	for i := 0; i < 3; i++ {
		c.Connect(transport.SecurityOpen, "cafe", nil)
		c.Poll()
	}
	up := 0
	for _, ev := range *events {
		if ev.Kind == transport.EventLinkConnected {
			up++
		}
	}
	if up != 1 {
		t.Errorf("link-up events = %d, want 1 after two dropped requests", up)
	}
}

func TestDisconnect(t *testing.T) {
	c, _, events := newTestChip(t, Options{AccessPoints: []AccessPoint{{SSID: "cafe"}}})
	c.Start(transport.PatchNone)

	if err := c.Disconnect(); err == nil {
		t.Error("Disconnect() while idle succeeded, want error")
	}

	c.Connect(transport.SecurityOpen, "cafe", nil)
	c.Poll()
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	c.Poll()
	got := kinds(*events)
	if got[len(got)-1] != transport.EventLinkDisconnected {
		t.Errorf("last event = %v, want link_disconnected", got[len(got)-1])
	}
}

func TestFailInjection(t *testing.T) {
	c, _, _ := newTestChip(t, Options{})
	c.Fail(transport.OpStart, -3, 1)

	err := c.Start(transport.PatchNone)
	if transport.StatusCode(err) != -3 {
		t.Fatalf("Start() status = %d, want -3", transport.StatusCode(err))
	}
	if err := c.Start(transport.PatchNone); err != nil {
		t.Fatalf("second Start() error = %v, want failure consumed", err)
	}
	if got := c.CallCount(transport.OpStart); got != 2 {
		t.Errorf("CallCount(start) = %d, want 2", got)
	}

	c.Fail(transport.OpStop, -1, 0)
	for i := 0; i < 3; i++ {
		if err := c.Stop(); err == nil {
			t.Fatal("Stop() succeeded with a persistent failure armed")
		}
	}
	c.ClearFailures()
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() after ClearFailures error = %v", err)
	}
}

func TestScanTable(t *testing.T) {
	c, _, _ := newTestChip(t, Options{AccessPoints: []AccessPoint{
		{SSID: "one", Security: transport.SecurityWPA2, RSSI: 40},
		{SSID: "two", Security: transport.SecurityOpen, RSSI: 20},
	}})
	c.Start(transport.PatchNone)
	c.SetScanParams(transport.DefaultScanParams(4 * time.Second))

	if st, _ := c.Status(); st != transport.StatusScanning {
		t.Errorf("Status() = %v, want scanning", st)
	}

	first, _ := c.ScanResult()
	if first.NetworkCount != 2 || first.SSIDName() != "one" || first.RSSI() != 40 {
		t.Errorf("first record = %d %q %d", first.NetworkCount, first.SSIDName(), first.RSSI())
	}
	second, _ := c.ScanResult()
	if second.SSIDName() != "two" || second.Security() != transport.SecurityOpen {
		t.Errorf("second record = %q %v", second.SSIDName(), second.Security())
	}
	end, _ := c.ScanResult()
	if end.Valid() || end.NetworkCount != 0 {
		t.Errorf("record past the end is valid")
	}
}

func TestProfilePolicyAutoConnect(t *testing.T) {
	c, _, events := newTestChip(t, Options{AccessPoints: []AccessPoint{{SSID: "home", Security: transport.SecurityWPA, Key: "k"}}})
	c.AddProfile(Profile{SSID: "home", Security: transport.SecurityWPA, Key: "k"})
	c.Start(transport.PatchNone)
	c.SetConnectionPolicy(transport.ProfilePolicy)
	c.Poll()

	found := false
	for _, ev := range *events {
		if ev.Kind == transport.EventLinkConnected {
			found = true
		}
	}
	if !found {
		t.Fatal("no link-up after profile policy")
	}

	c.DeleteProfile(transport.DeleteAllProfiles)
	if p, _ := c.Profiles(); len(p) != 0 {
		t.Errorf("profiles after delete-all = %v", p)
	}
}

func TestProvisioningEncrypted(t *testing.T) {
	key := "0123456789012345"
	c, clk, events := newTestChip(t, Options{
		AccessPoints: []AccessPoint{{SSID: "home", Security: transport.SecurityWPA2, Key: "hunter22"}},
		Provisioner: &Provisioner{
			Network: AccessPoint{SSID: "home", Security: transport.SecurityWPA2, Key: "hunter22"},
			AESKey:  key,
			Delay:   time.Second,
		},
	})
	c.Start(transport.PatchNone)
	var aes [transport.AESKeySize]byte
	copy(aes[:], key)

	if err := c.WriteAESKey(aes); err == nil {
		t.Error("WriteAESKey() without key file succeeded")
	}
	c.CreateNVMemEntry(transport.NVMemAESKeyFileID, transport.AESKeySize)
	if err := c.WriteAESKey(aes); err != nil {
		t.Fatalf("WriteAESKey() error = %v", err)
	}
	c.SetProvisioningPrefix([3]byte{'T', 'T', 'T'})
	if err := c.StartProvisioning(); err != nil {
		t.Fatalf("StartProvisioning() error = %v", err)
	}
	if err := c.ProcessProvisioning(); err == nil {
		t.Error("ProcessProvisioning() before data arrived succeeded")
	}

	clk.Advance(time.Second)
	c.Poll()
	if got := kinds(*events); got[len(got)-1] != transport.EventProvisioningDone {
		t.Fatalf("events = %v, want provisioning_done last", got)
	}
	if p, _ := c.Profiles(); len(p) != 0 {
		t.Fatalf("encrypted profile stored before processing: %v", p)
	}
	if err := c.ProcessProvisioning(); err != nil {
		t.Fatalf("ProcessProvisioning() error = %v", err)
	}
	p, _ := c.Profiles()
	if len(p) != 1 || p[0].Key != "hunter22" {
		t.Errorf("profiles = %+v, want decrypted key", p)
	}
}

func TestProvisioningPlaintextStoredOnArrival(t *testing.T) {
	c, clk, _ := newTestChip(t, Options{
		Provisioner: &Provisioner{Network: AccessPoint{SSID: "cafe"}, Delay: time.Second},
	})
	c.Start(transport.PatchNone)
	c.SetProvisioningPrefix([3]byte{'T', 'T', 'T'})
	c.StartProvisioning()
	clk.Advance(time.Second)
	c.Poll()
	if p, _ := c.Profiles(); len(p) != 1 || p[0].SSID != "cafe" {
		t.Errorf("profiles = %+v, want cafe", p)
	}
}

func TestProvisioningRejectsPrefix(t *testing.T) {
	c, _, _ := newTestChip(t, Options{})
	c.Start(transport.PatchNone)
	c.SetProvisioningPrefix([3]byte{'A', 'B', 'C'})
	if err := c.StartProvisioning(); err == nil {
		t.Error("StartProvisioning() with prefix ABC succeeded")
	}
}

func connectedChip(t *testing.T, opts Options) (*Chip, *testClock, *[]transport.Event) {
	t.Helper()
	opts.AccessPoints = append(opts.AccessPoints, AccessPoint{SSID: "lab"})
	c, clk, events := newTestChip(t, opts)
	c.Start(transport.PatchNone)
	c.Connect(transport.SecurityOpen, "lab", nil)
	c.Poll()
	return c, clk, events
}

func TestSocketEcho(t *testing.T) {
	peer := netip.MustParseAddrPort("10.0.0.2:7")
	c, _, _ := connectedChip(t, Options{
		Peers:   map[netip.AddrPort]PeerFactory{peer: Echo()},
		MaxSend: 4,
	})

	sd, err := c.Socket(transport.AFInet, transport.SockStream, transport.ProtoTCP)
	if err != nil || sd != 0 {
		t.Fatalf("Socket() = %d, %v", sd, err)
	}
	if err := c.ConnectSocket(sd, transport.NewSockAddr(peer.Addr(), peer.Port())); err != nil {
		t.Fatalf("ConnectSocket() error = %v", err)
	}
	n, err := c.Send(sd, []byte("hello"), 0)
	if err != nil || n != 4 {
		t.Fatalf("Send() = %d, %v, want 4 (MaxSend)", n, err)
	}
	if ok, _ := c.Select(sd, 0); !ok {
		t.Error("Select() = false with data pending")
	}
	buf := make([]byte, 16)
	n, err = c.Recv(sd, buf, 0)
	if err != nil || string(buf[:n]) != "hell" {
		t.Errorf("Recv() = %q, %v", buf[:n], err)
	}
}

func TestSocketRefused(t *testing.T) {
	c, _, _ := connectedChip(t, Options{})
	sd, _ := c.Socket(transport.AFInet, transport.SockStream, transport.ProtoTCP)
	err := c.ConnectSocket(sd, transport.NewSockAddr(netip.MustParseAddr("10.9.9.9"), 80))
	if err == nil {
		t.Fatal("ConnectSocket() to a missing peer succeeded")
	}
}

func TestPeerCloseThenReset(t *testing.T) {
	peer := netip.MustParseAddrPort("10.0.0.3:80")
	c, _, events := connectedChip(t, Options{
		Peers: map[netip.AddrPort]PeerFactory{peer: HTTPServer("ok")},
	})
	sd, _ := c.Socket(transport.AFInet, transport.SockStream, transport.ProtoTCP)
	c.ConnectSocket(sd, transport.NewSockAddr(peer.Addr(), peer.Port()))
	c.Send(sd, []byte("GET / HTTP/1.0\r\n\r\n"), 0)
	c.Poll()

	last := (*events)[len(*events)-1]
	if last.Kind != transport.EventPeerClose || last.Socket != sd {
		t.Fatalf("last event = %+v, want peer close on %d", last, sd)
	}

	buf := make([]byte, 256)
	if _, err := c.Recv(sd, buf, 0); err != nil {
		t.Fatalf("Recv() of pending reply error = %v", err)
	}
	if ok, _ := c.Select(sd, time.Millisecond); ok {
		t.Error("Select() = true on a drained closed socket")
	}
	_, err := c.Recv(sd, buf, 0)
	if !errors.Is(err, transport.ErrConnectionReset) {
		t.Errorf("Recv() after drain error = %v, want connection reset", err)
	}
}

func TestRecvTimeout(t *testing.T) {
	peer := netip.MustParseAddrPort("10.0.0.2:7")
	c, _, _ := connectedChip(t, Options{
		Peers:       map[netip.AddrPort]PeerFactory{peer: Echo()},
		RecvTimeout: 5 * time.Millisecond,
	})
	sd, _ := c.Socket(transport.AFInet, transport.SockStream, transport.ProtoTCP)
	c.ConnectSocket(sd, transport.NewSockAddr(peer.Addr(), peer.Port()))
	_, err := c.Recv(sd, make([]byte, 4), 0)
	if transport.StatusCode(err) != StatusTimedOut {
		t.Errorf("Recv() status = %d, want %d", transport.StatusCode(err), StatusTimedOut)
	}
}

func TestRecvWakesOnDeliver(t *testing.T) {
	peer := netip.MustParseAddrPort("10.0.0.2:7")
	c, _, _ := connectedChip(t, Options{
		Peers: map[netip.AddrPort]PeerFactory{peer: Echo()},
	})
	sd, _ := c.Socket(transport.AFInet, transport.SockStream, transport.ProtoTCP)
	c.ConnectSocket(sd, transport.NewSockAddr(peer.Addr(), peer.Port()))

	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Deliver(sd, []byte("late"))
	}()
	buf := make([]byte, 8)
	n, err := c.Recv(sd, buf, 0)
	if err != nil || string(buf[:n]) != "late" {
		t.Errorf("Recv() = %q, %v, want late", buf[:n], err)
	}
}

func TestSocketSlotReuse(t *testing.T) {
	c, _, _ := connectedChip(t, Options{})
	a, _ := c.Socket(transport.AFInet, transport.SockDgram, transport.ProtoUDP)
	b, _ := c.Socket(transport.AFInet, transport.SockDgram, transport.ProtoUDP)
	c.CloseSocket(a)
	again, _ := c.Socket(transport.AFInet, transport.SockDgram, transport.ProtoUDP)
	if again != a || b == a {
		t.Errorf("slots = %d %d %d, want lowest free reused", a, b, again)
	}
	if err := c.CloseSocket(a); err != nil {
		t.Fatal(err)
	}
	if err := c.CloseSocket(a); err == nil {
		t.Error("second CloseSocket() succeeded")
	}
}

func TestPingReport(t *testing.T) {
	c, clk, events := connectedChip(t, Options{PingRTT: 10 * time.Millisecond})
	gw := DefaultLease().Gateway

	if err := c.PingSend(gw, 3, 32, time.Second); err != nil {
		t.Fatalf("PingSend() error = %v", err)
	}
	clk.Advance(30 * time.Millisecond)
	c.Poll()
	last := (*events)[len(*events)-1]
	if last.Kind != transport.EventPingReport || last.Ping.Received != 3 {
		t.Fatalf("last event = %+v, want report with 3 received", last)
	}

	c.PingSend(netip.MustParseAddr("203.0.113.1"), 2, 32, 100*time.Millisecond)
	clk.Advance(200 * time.Millisecond)
	c.Poll()
	last = (*events)[len(*events)-1]
	if last.Ping.Sent != 2 || last.Ping.Received != 0 {
		t.Errorf("unreachable report = %+v", last.Ping)
	}
}

func TestGetHostByName(t *testing.T) {
	want := netip.MustParseAddr("93.184.216.34")
	c, _, _ := connectedChip(t, Options{Hosts: map[string]netip.Addr{"Example.com": want}})

	got, err := c.GetHostByName("example.com.")
	if err != nil || got != want {
		t.Errorf("GetHostByName() = %v, %v, want %v", got, err, want)
	}
	if _, err := c.GetHostByName("nowhere.invalid"); err == nil {
		t.Error("GetHostByName() for unknown host succeeded")
	}
}

func TestStopDropsEverything(t *testing.T) {
	c, _, _ := connectedChip(t, Options{})
	c.Socket(transport.AFInet, transport.SockDgram, transport.ProtoUDP)
	c.Stop()
	if _, ok := c.Associated(); ok {
		t.Error("still associated after Stop")
	}
	if c.OpenSockets() != 0 || c.PendingEvents() != 0 {
		t.Errorf("sockets=%d pending=%d after Stop", c.OpenSockets(), c.PendingEvents())
	}
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvmem.db")
	s, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore() error = %v", err)
	}
	if p, err := s.Profiles(); err != nil || len(p) != 0 {
		t.Fatalf("Profiles() on empty store = %v, %v", p, err)
	}
	want := []Profile{{SSID: "home", Key: "secret", Security: transport.SecurityWPA2}}
	if err := s.SaveProfiles(want); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAESKey([]byte("0123456789012345")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	got, _ := s.Profiles()
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Profiles() after reopen = %+v, want %+v", got, want)
	}
	key, _ := s.AESKey()
	if string(key) != "0123456789012345" {
		t.Errorf("AESKey() = %q", key)
	}
}

func TestBoltStoreBacksChip(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "nvmem.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	c := New(Options{Store: s})
	c.AddProfile(Profile{SSID: "a"})
	c.AddProfile(Profile{SSID: "b"})
	c.AddProfile(Profile{SSID: "a", Key: "new", Security: transport.SecurityWEP})
	c.Start(transport.PatchNone)
	if err := c.DeleteProfile(0); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Profiles()
	if len(p) != 1 || p[0].SSID != "a" || p[0].Key != "new" {
		t.Errorf("profiles = %+v, want only the replaced a", p)
	}
}
