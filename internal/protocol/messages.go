package protocol

import (
	"net/netip"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

// Request payloads, one per chip command. Commands without arguments send
// an empty payload.

type StartArgs struct {
	Patch transport.PatchMode `json:"patch"`
}

type EventMaskArgs struct {
	Mask transport.EventMask `json:"mask"`
}

type PolicyArgs struct {
	Policy transport.Policy `json:"policy"`
}

type DeleteProfileArgs struct {
	Index int `json:"index"`
}

type ConnectArgs struct {
	Security transport.Security `json:"security"`
	SSID     string             `json:"ssid"`
	Key      []byte             `json:"key,omitempty"`
}

type ScanParamsArgs struct {
	Params transport.ScanParams `json:"params"`
}

type NVMemArgs struct {
	FileID uint8 `json:"file_id"`
	Size   int   `json:"size"`
}

type AESKeyArgs struct {
	Key []byte `json:"key"`
}

type PrefixArgs struct {
	Prefix string `json:"prefix"`
}

type PingArgs struct {
	IP       netip.Addr    `json:"ip"`
	Attempts int           `json:"attempts"`
	Size     int           `json:"size"`
	Timeout  time.Duration `json:"timeout"`
}

type HostArgs struct {
	Name string `json:"name"`
}

type MDNSArgs struct {
	Enable bool   `json:"enable"`
	Name   string `json:"name"`
}

type SocketArgs struct {
	Family   transport.Family   `json:"family"`
	Type     transport.SockType `json:"type"`
	Protocol transport.Protocol `json:"protocol"`
}

type ConnectSocketArgs struct {
	Socket int32              `json:"socket"`
	Addr   transport.SockAddr `json:"addr"`
}

type SendArgs struct {
	Socket int32  `json:"socket"`
	Data   []byte `json:"data"`
	Flags  uint32 `json:"flags,omitempty"`
}

type RecvArgs struct {
	Socket int32  `json:"socket"`
	Max    int    `json:"max"`
	Flags  uint32 `json:"flags,omitempty"`
}

type SelectArgs struct {
	Socket  int32         `json:"socket"`
	Timeout time.Duration `json:"timeout"`
}

type CloseSocketArgs struct {
	Socket int32 `json:"socket"`
}

// Response results

type StatusResult struct {
	Status transport.ChipStatus `json:"status"`
}

type AddrResult struct {
	Addr netip.Addr `json:"addr"`
}

type SocketResult struct {
	Socket int32 `json:"socket"`
}

type CountResult struct {
	N int `json:"n"`
}

type DataResult struct {
	Data []byte `json:"data"`
}

type ReadyResult struct {
	Ready bool `json:"ready"`
}

// MaxRecv caps one recv over the bridge.
const MaxRecv = 1024
