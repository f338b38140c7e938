package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Chip limits
const (
	MaxSockets        = 32
	MaxSSIDLen        = 32
	MaxKeyLen         = 32
	AESKeySize        = 16
	ScanRecordSSIDLen = 32

	// DeleteAllProfiles is the profile index that clears every stored profile.
	DeleteAllProfiles = 255

	// NVMemAESKeyFileID is the nvmem file holding the provisioning AES key.
	NVMemAESKeyFileID uint8 = 12
)

// PatchMode selects which firmware patches the chip loads at start.
type PatchMode uint8

const (
	PatchNone    PatchMode = iota // use patches stored in EEPROM
	PatchHost                     // patches supplied by the host driver
	PatchDefault                  // chip ROM defaults only
)

// Security is the association security mode.
type Security uint8

const (
	SecurityOpen Security = iota
	SecurityWEP
	SecurityWPA
	SecurityWPA2
)

// Valid reports whether s is a known mode.
func (s Security) Valid() bool {
	return s <= SecurityWPA2
}

func (s Security) String() string {
	switch s {
	case SecurityOpen:
		return "open"
	case SecurityWEP:
		return "wep"
	case SecurityWPA:
		return "wpa"
	case SecurityWPA2:
		return "wpa2"
	default:
		return fmt.Sprintf("Security(%d)", s)
	}
}

// ParseSecurity maps a mode name to its Security value.
func ParseSecurity(name string) (Security, error) {
	switch name {
	case "open", "":
		return SecurityOpen, nil
	case "wep":
		return SecurityWEP, nil
	case "wpa":
		return SecurityWPA, nil
	case "wpa2":
		return SecurityWPA2, nil
	}
	return 0, fmt.Errorf("unknown security mode %q", name)
}

// ChipStatus is the radio status reported by the chip.
type ChipStatus uint8

const (
	StatusDisconnected ChipStatus = iota
	StatusScanning
	StatusConnecting
	StatusConnected
)

func (s ChipStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusScanning:
		return "scanning"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("ChipStatus(%d)", s)
	}
}

// Policy is the chip's connection policy.
type Policy struct {
	AutoConnect bool // reconnect to any open AP
	FastConnect bool // reconnect to the last AP
	UseProfiles bool // reconnect using stored profiles
}

// ManualPolicy disables all automatic reconnection.
var ManualPolicy = Policy{}

// ProfilePolicy reconnects from stored profiles only.
var ProfilePolicy = Policy{UseProfiles: true}

// ScanParams mirrors the chip's scan parameter block.
type ScanParams struct {
	Duration         time.Duration // 0 aborts the running scan
	MinDwell         time.Duration
	MaxDwell         time.Duration
	NumProbes        uint32
	ChannelMask      uint32
	RSSIThreshold    int32
	SNRThreshold     uint32
	TxPower          uint32
	ChannelIntervals [16]time.Duration
}

// DefaultScanParams returns the chip defaults for a scan of duration d.
func DefaultScanParams(d time.Duration) ScanParams {
	p := ScanParams{
		Duration:      d,
		MinDwell:      20 * time.Millisecond,
		MaxDwell:      100 * time.Millisecond,
		NumProbes:     5,
		ChannelMask:   0x7FF,
		RSSIThreshold: -120,
		SNRThreshold:  0,
		TxPower:       300,
	}
	for i := range p.ChannelIntervals {
		p.ChannelIntervals[i] = 2000 * time.Millisecond
	}
	return p
}

// ScanRecord is one raw entry of the chip's scan table.
//
// RSSIField holds the valid flag in bit 0 and the RSSI in bits 1-7.
// SecSSIDLen holds the security mode in bits 0-1 and the SSID length in
// bits 2-7.
type ScanRecord struct {
	NetworkCount uint32
	ScanStatus   uint32
	RSSIField    uint8
	SecSSIDLen   uint8
	FrameTime    uint16
	SSID         [ScanRecordSSIDLen]byte
	BSSID        [6]byte
}

// Valid reports the record's valid bit.
func (r ScanRecord) Valid() bool { return r.RSSIField&0x01 != 0 }

// RSSI returns the signal strength field.
func (r ScanRecord) RSSI() uint8 { return r.RSSIField >> 1 }

// Security returns the advertised security mode.
func (r ScanRecord) Security() Security { return Security(r.SecSSIDLen & 0x03) }

// SSIDName returns the SSID bytes up to the encoded length.
func (r ScanRecord) SSIDName() string {
	n := int(r.SecSSIDLen >> 2)
	if n > len(r.SSID) {
		n = len(r.SSID)
	}
	return string(r.SSID[:n])
}

// EncodeScanRecord builds a record the way the chip lays it out.
func EncodeScanRecord(count uint32, ssid string, sec Security, rssi uint8, valid bool) ScanRecord {
	r := ScanRecord{NetworkCount: count, ScanStatus: 1}
	n := copy(r.SSID[:], ssid)
	r.SecSSIDLen = uint8(n<<2) | uint8(sec&0x03)
	r.RSSIField = rssi << 1
	if valid {
		r.RSSIField |= 0x01
	}
	return r
}

// IPConfig is the chip's IP configuration report.
type IPConfig struct {
	IP         netip.Addr
	Netmask    netip.Addr
	Gateway    netip.Addr
	DHCPServer netip.Addr
	DNSServer  netip.Addr
	MAC        net.HardwareAddr
	SSID       string
}

// PingReport holds the statistics of one ping burst.
type PingReport struct {
	Sent     uint32
	Received uint32
	MinRTT   time.Duration
	MaxRTT   time.Duration
	AvgRTT   time.Duration
}

// Family, SockType and Protocol select the kind of chip socket.
type (
	Family   uint16
	SockType int32
	Protocol int32
)

const (
	AFInet Family = 2

	SockStream SockType = 1
	SockDgram  SockType = 2

	ProtoTCP Protocol = 6
	ProtoUDP Protocol = 17
)

// SockAddr is the chip's generic socket address.
type SockAddr struct {
	Family Family
	Data   [14]byte
}

// NewSockAddr returns an AF_INET address with a big-endian port followed by
// the four IPv4 octets.
func NewSockAddr(ip netip.Addr, port uint16) SockAddr {
	a := SockAddr{Family: AFInet}
	binary.BigEndian.PutUint16(a.Data[0:2], port)
	v4 := ip.As4()
	copy(a.Data[2:6], v4[:])
	return a
}

// Port returns the port stored in the address.
func (a SockAddr) Port() uint16 {
	return binary.BigEndian.Uint16(a.Data[0:2])
}

// Addr returns the IPv4 address stored in the address.
func (a SockAddr) Addr() netip.Addr {
	var v4 [4]byte
	copy(v4[:], a.Data[2:6])
	return netip.AddrFrom4(v4)
}

// AddrPort returns the address as a netip.AddrPort.
func (a SockAddr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.Addr(), a.Port())
}
