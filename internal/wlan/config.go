package wlan

import "time"

// Default timings, taken from the chip vendor's host driver.
const (
	DefaultConnectTimeout      = 10 * time.Second
	DefaultPollInterval        = 10 * time.Millisecond
	DefaultSettleDelay         = 500 * time.Millisecond
	DefaultScanDuration        = 4 * time.Second
	DefaultScanWait            = 4500 * time.Millisecond
	DefaultProvisioningTimeout = 60 * time.Second
	DefaultRadioRestartDelay   = 1 * time.Second
	DefaultRebootDelay         = 5 * time.Second
	DefaultPostConnectDelay    = 1 * time.Second
	DefaultSelectTimeout       = 5 * time.Millisecond

	DefaultDeviceName         = "CC3000"
	DefaultProvisioningPrefix = "TTT"
	DefaultProvisioningKey    = "0123456789012345"
)

// Socket buffer sizes
const (
	RxBufferSize = 64
	TxBufferSize = 32
)

// Clock is the time source of every wait. Tests substitute a clock whose
// Sleep advances Now without blocking.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Config holds the manager's timings and identity.
type Config struct {
	ConnectTimeout      time.Duration // link-up budget after an associate request
	PollInterval        time.Duration // sleep between polls in bounded waits
	SettleDelay         time.Duration // pause between policy change and associate
	ScanDuration        time.Duration // scan run before each association attempt
	ScanWait            time.Duration // wait for scan results
	ProvisioningTimeout time.Duration // SmartConfig listen window
	RadioRestartDelay   time.Duration // pause between stop and start during provisioning
	RebootDelay         time.Duration
	PostConnectDelay    time.Duration // pause before mDNS advertisement
	SelectTimeout       time.Duration // readiness poll in Client.Available

	DeviceName         string // mDNS advertised name
	ProvisioningPrefix string // 3-byte SmartConfig prefix
	ProvisioningKey    string // 16-byte SmartConfig AES key

	Clock Clock
}

// DefaultConfig returns the vendor driver defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:      DefaultConnectTimeout,
		PollInterval:        DefaultPollInterval,
		SettleDelay:         DefaultSettleDelay,
		ScanDuration:        DefaultScanDuration,
		ScanWait:            DefaultScanWait,
		ProvisioningTimeout: DefaultProvisioningTimeout,
		RadioRestartDelay:   DefaultRadioRestartDelay,
		RebootDelay:         DefaultRebootDelay,
		PostConnectDelay:    DefaultPostConnectDelay,
		SelectTimeout:       DefaultSelectTimeout,
		DeviceName:          DefaultDeviceName,
		ProvisioningPrefix:  DefaultProvisioningPrefix,
		ProvisioningKey:     DefaultProvisioningKey,
		Clock:               SystemClock,
	}
}

// withDefaults fills unset fields from DefaultConfig. Zero delays are kept
// as "no delay"; zero budgets and intervals take the default.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = d.ConnectTimeout
	}
	if out.PollInterval <= 0 {
		out.PollInterval = d.PollInterval
	}
	if out.SettleDelay < 0 {
		out.SettleDelay = d.SettleDelay
	}
	if out.ScanDuration <= 0 {
		out.ScanDuration = d.ScanDuration
	}
	if out.ScanWait < 0 {
		out.ScanWait = d.ScanWait
	}
	if out.ProvisioningTimeout <= 0 {
		out.ProvisioningTimeout = d.ProvisioningTimeout
	}
	if out.RadioRestartDelay < 0 {
		out.RadioRestartDelay = d.RadioRestartDelay
	}
	if out.RebootDelay < 0 {
		out.RebootDelay = d.RebootDelay
	}
	if out.PostConnectDelay < 0 {
		out.PostConnectDelay = d.PostConnectDelay
	}
	if out.SelectTimeout <= 0 {
		out.SelectTimeout = d.SelectTimeout
	}
	if out.DeviceName == "" {
		out.DeviceName = d.DeviceName
	}
	if out.ProvisioningPrefix == "" {
		out.ProvisioningPrefix = d.ProvisioningPrefix
	}
	if out.ProvisioningKey == "" {
		out.ProvisioningKey = d.ProvisioningKey
	}
	if out.Clock == nil {
		out.Clock = d.Clock
	}
	return &out
}
