package sim

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

// AccessPoint is a network in radio range of the simulated chip.
type AccessPoint struct {
	SSID     string             `json:"ssid" yaml:"ssid"`
	Security transport.Security `json:"security" yaml:"security"`
	Key      string             `json:"key,omitempty" yaml:"key,omitempty"`
	RSSI     uint8              `json:"rssi" yaml:"rssi"`
}

// accepts reports whether an associate request with sec and key succeeds.
func (ap AccessPoint) accepts(sec transport.Security, key string) bool {
	if ap.Security == transport.SecurityOpen {
		return sec == transport.SecurityOpen
	}
	return sec == ap.Security && key == ap.Key
}

// Lease is the DHCP lease handed out after association.
type Lease struct {
	IP         netip.Addr
	Netmask    netip.Addr
	Gateway    netip.Addr
	DHCPServer netip.Addr
	DNSServer  netip.Addr
}

// DefaultLease returns a typical home network lease.
func DefaultLease() Lease {
	return Lease{
		IP:         netip.MustParseAddr("192.168.1.50"),
		Netmask:    netip.MustParseAddr("255.255.255.0"),
		Gateway:    netip.MustParseAddr("192.168.1.1"),
		DHCPServer: netip.MustParseAddr("192.168.1.1"),
		DNSServer:  netip.MustParseAddr("192.168.1.1"),
	}
}

// Provisioner plays the phone app of the SmartConfig flow.
type Provisioner struct {
	// Network is the credentials the app sends.
	Network AccessPoint
	// AESKey encrypts the key on the air. Empty sends it in the clear.
	AESKey string
	// Delay is the time from opening the window until the data arrives.
	Delay time.Duration
}

// Options configures a simulated chip.
type Options struct {
	AccessPoints []AccessPoint
	Lease        Lease
	MAC          net.HardwareAddr
	// Hosts answers gethostbyname.
	Hosts map[string]netip.Addr
	// Peers are the remote endpoints sockets can connect to. Every socket
	// connect creates a fresh Peer from the factory.
	Peers       map[netip.AddrPort]PeerFactory
	Provisioner *Provisioner
	// Store is the chip's non-volatile memory. Defaults to a MemStore.
	Store Store

	// Now is the chip's time source. Scheduled events become due against
	// it, so tests share it with the manager's clock.
	Now func() time.Time

	ConnectDelay time.Duration // associate request to link-up event
	DHCPDelay    time.Duration // link-up to DHCP event
	PingRTT      time.Duration
	// MaxSend caps the bytes accepted by one send. Zero means no cap.
	MaxSend int
	// RecvTimeout bounds a recv on an empty socket, in wall time.
	RecvTimeout time.Duration
	// DropConnects is the number of associate requests silently ignored
	// before the chip starts honouring them.
	DropConnects int
}

// StatusTimedOut is the recv status for an expired receive timeout.
const StatusTimedOut int32 = -11

type scheduled struct {
	at time.Time
	ev transport.Event
}

type failure struct {
	code  int32
	times int // <= 0 fails until cleared
}

// Chip is an in-memory SimpleLink chip. It implements transport.Transport.
// Events are queued with a due time and delivered by Poll.
type Chip struct {
	mu      sync.Mutex
	opts    Options
	now     func() time.Time
	store   Store
	handler transport.EventHandler

	started bool
	mask    transport.EventMask
	policy  transport.Policy
	pending []scheduled

	assoc     *AccessPoint
	linkAt    time.Time
	dhcpAt    time.Time
	dropsLeft int

	scanning   bool
	scanEnd    time.Time
	scanTable  []transport.ScanRecord
	scanCursor int

	nvmem      map[uint8]int
	prefix     [3]byte
	listening  bool
	received   *received
	advertised string

	sockets [transport.MaxSockets]*socket

	failures map[string]*failure
	calls    []string
}

var _ transport.Transport = (*Chip)(nil)

// New creates a chip in the stopped state.
func New(opts Options) *Chip {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Store == nil {
		opts.Store = NewMemStore()
	}
	if !opts.Lease.IP.IsValid() {
		opts.Lease = DefaultLease()
	}
	if opts.MAC == nil {
		opts.MAC = net.HardwareAddr{0x08, 0x00, 0x28, 0x57, 0x43, 0x30}
	}
	if opts.RecvTimeout <= 0 {
		opts.RecvTimeout = 5 * time.Second
	}
	if opts.PingRTT <= 0 {
		opts.PingRTT = 5 * time.Millisecond
	}
	return &Chip{
		opts:      opts,
		now:       opts.Now,
		store:     opts.Store,
		dropsLeft: opts.DropConnects,
		nvmem:     make(map[uint8]int),
		failures:  make(map[string]*failure),
	}
}

// SetEventHandler registers the event callback.
func (c *Chip) SetEventHandler(h transport.EventHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Poll delivers every event that is due and not masked. The handler runs
// without the chip lock held.
func (c *Chip) Poll() error {
	c.mu.Lock()
	c.settle()
	now := c.now()
	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].at.Before(c.pending[j].at)
	})
	var due []transport.Event
	keep := c.pending[:0]
	for _, s := range c.pending {
		if s.at.After(now) {
			keep = append(keep, s)
			continue
		}
		if !c.mask.Suppresses(s.ev.Kind) {
			due = append(due, s.ev)
		}
	}
	c.pending = keep
	h := c.handler
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	for _, ev := range due {
		h(ev)
	}
	return nil
}

// emit queues ev to become due at t. Callers hold c.mu.
func (c *Chip) emit(t time.Time, ev transport.Event) {
	c.pending = append(c.pending, scheduled{at: t, ev: ev})
}

// dropPending removes queued events of the given kinds. Callers hold c.mu.
func (c *Chip) dropPending(kinds ...transport.EventKind) {
	keep := c.pending[:0]
	for _, s := range c.pending {
		drop := false
		for _, k := range kinds {
			if s.ev.Kind == k {
				drop = true
				break
			}
		}
		if !drop {
			keep = append(keep, s)
		}
	}
	c.pending = keep
}

// Fail makes the next times calls of op return code. times <= 0 fails until
// ClearFailures.
func (c *Chip) Fail(op string, code int32, times int) {
	c.mu.Lock()
	c.failures[op] = &failure{code: code, times: times}
	c.mu.Unlock()
}

// ClearFailures removes all injected failures.
func (c *Chip) ClearFailures() {
	c.mu.Lock()
	c.failures = make(map[string]*failure)
	c.mu.Unlock()
}

// Calls returns the commands issued so far, in order.
func (c *Chip) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CallCount returns how many times op was issued.
func (c *Chip) CallCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (c *Chip) ResetCalls() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}

// begin records op, advances time-driven state and returns an injected
// failure if one is armed. Callers hold c.mu.
func (c *Chip) begin(op string) error {
	c.calls = append(c.calls, op)
	c.settle()
	f, ok := c.failures[op]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(c.failures, op)
		}
	}
	return &transport.CallError{Op: op, Code: f.code}
}

// settle applies state changes whose time has come. Callers hold c.mu.
func (c *Chip) settle() {
	now := c.now()
	if c.scanning && !now.Before(c.scanEnd) {
		c.scanning = false
	}
	if r := c.received; r != nil && !r.stored && !now.Before(r.at) && !r.encrypted {
		if err := c.addProfile(r.profile); err == nil {
			r.stored = true
		}
	}
}

func (c *Chip) linkUp(now time.Time) bool {
	return c.assoc != nil && !now.Before(c.linkAt)
}

func (c *Chip) dhcpBound(now time.Time) bool {
	return c.assoc != nil && !now.Before(c.dhcpAt)
}

// associate starts an association with ap. Callers hold c.mu.
func (c *Chip) associate(ap AccessPoint) {
	now := c.now()
	if c.assoc != nil {
		c.dropPending(transport.EventLinkConnected, transport.EventDHCPAcquired)
		c.emit(now, transport.Event{Kind: transport.EventLinkDisconnected})
	}
	c.assoc = &ap
	c.linkAt = now.Add(c.opts.ConnectDelay)
	c.dhcpAt = c.linkAt.Add(c.opts.DHCPDelay)
	c.emit(c.linkAt, transport.Event{Kind: transport.EventLinkConnected})
	c.emit(c.dhcpAt, transport.Event{Kind: transport.EventDHCPAcquired})
}

// disassociate drops the association and queues the link-down event.
// Callers hold c.mu.
func (c *Chip) disassociate() {
	c.assoc = nil
	c.advertised = ""
	c.dropPending(transport.EventLinkConnected, transport.EventDHCPAcquired)
	c.emit(c.now(), transport.Event{Kind: transport.EventLinkDisconnected})
}

func (c *Chip) findAP(ssid string) (AccessPoint, bool) {
	for _, ap := range c.opts.AccessPoints {
		if ap.SSID == ssid {
			return ap, true
		}
	}
	return AccessPoint{}, false
}

// autoConnect associates with the first stored profile in range. Callers
// hold c.mu.
func (c *Chip) autoConnect() {
	profiles, err := c.store.Profiles()
	if err != nil {
		return
	}
	for _, p := range profiles {
		if ap, ok := c.findAP(p.SSID); ok && ap.accepts(p.Security, p.Key) {
			c.associate(ap)
			return
		}
	}
}

// DropLink simulates the access point dropping the association.
func (c *Chip) DropLink() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assoc != nil {
		c.disassociate()
	}
}

// AddAccessPoint puts another network in range.
func (c *Chip) AddAccessPoint(ap AccessPoint) {
	c.mu.Lock()
	c.opts.AccessPoints = append(c.opts.AccessPoints, ap)
	c.mu.Unlock()
}

// Started reports whether the radio is running.
func (c *Chip) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Mask returns the current event mask.
func (c *Chip) Mask() transport.EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mask
}

// Policy returns the current connection policy.
func (c *Chip) Policy() transport.Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// Associated returns the SSID of the current association, if any.
func (c *Chip) Associated() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assoc == nil {
		return "", false
	}
	return c.assoc.SSID, true
}

// Advertised returns the name announced over mDNS, or "".
func (c *Chip) Advertised() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advertised
}

// PendingEvents returns the number of queued events.
func (c *Chip) PendingEvents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func callErr(op string, format string, args ...any) error {
	return fmt.Errorf("%w: %s", &transport.CallError{Op: op, Code: transport.StatusFailure}, fmt.Sprintf(format, args...))
}
