package transport

import (
	"net/netip"
	"time"
)

// EventHandler receives unsolicited chip events. It is invoked synchronously
// from within Poll.
type EventHandler func(Event)

// WLAN covers device lifecycle, connection policy, profiles, association and
// scanning.
type WLAN interface {
	Start(patch PatchMode) error
	Stop() error
	SetEventMask(mask EventMask) error
	SetConnectionPolicy(p Policy) error
	// DeleteProfile removes a stored profile. DeleteAllProfiles clears them all.
	DeleteProfile(index int) error
	Connect(sec Security, ssid string, key []byte) error
	Disconnect() error
	// SetScanParams starts a scan. A zero Duration aborts the running scan.
	SetScanParams(p ScanParams) error
	// ScanResult returns the current record of the chip's scan table and
	// advances the chip-side cursor.
	ScanResult() (ScanRecord, error)
	Status() (ChipStatus, error)
}

// Provisioning covers the SmartConfig listen window and the nvmem key store
// used for at-rest decryption of provisioned credentials.
type Provisioning interface {
	CreateNVMemEntry(fileID uint8, size int) error
	WriteAESKey(key [AESKeySize]byte) error
	SetProvisioningPrefix(prefix [3]byte) error
	StartProvisioning() error
	// ProcessProvisioning decrypts the received credentials with the stored
	// AES key and writes the resulting profile.
	ProcessProvisioning() error
}

// NetApp covers the chip's IP layer services.
type NetApp interface {
	IPConfig() (IPConfig, error)
	PingSend(ip netip.Addr, attempts, size int, timeout time.Duration) error
	GetHostByName(name string) (netip.Addr, error)
	MDNSAdvertise(enable bool, name string) error
}

// Sockets covers the chip's remote BSD-style socket primitives. Handles are
// chip-assigned and lie in [0, MaxSockets).
type Sockets interface {
	Socket(family Family, typ SockType, proto Protocol) (int32, error)
	ConnectSocket(sd int32, addr SockAddr) error
	Send(sd int32, p []byte, flags uint32) (int, error)
	// Recv blocks until data arrives. A reset connection is reported as
	// ErrConnectionReset.
	Recv(sd int32, p []byte, flags uint32) (int, error)
	// Select reports whether sd is readable, waiting at most timeout.
	Select(sd int32, timeout time.Duration) (bool, error)
	CloseSocket(sd int32) error
}

// Poller is the event delivery point.
type Poller interface {
	SetEventHandler(h EventHandler)
	// Poll drains pending events into the registered handler.
	Poll() error
}

// Transport is the complete host-driver surface.
type Transport interface {
	WLAN
	Provisioning
	NetApp
	Sockets
	Poller
}
