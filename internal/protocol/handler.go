package protocol

import (
	"errors"
	"fmt"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
	"go.uber.org/zap"
)

// ErrUnknownOp is returned for a request naming no chip command.
var ErrUnknownOp = errors.New("unknown op")

// Dispatch executes a request frame against t and returns the response frame.
// Events raised by a poll request reach t's registered handler before
// Dispatch returns.
func Dispatch(t transport.Transport, req *Frame) *Frame {
	result, err := call(t, req)
	if err != nil {
		logging.Debug("Chip command failed",
			zap.String("op", req.Op),
			zap.Uint32("seq", req.Seq),
			zap.Error(err),
		)
	}
	return NewResponse(req, result, err)
}

func call(t transport.Transport, req *Frame) (any, error) {
	switch req.Op {
	case transport.OpStart:
		var a StartArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.Start(a.Patch)

	case transport.OpStop:
		return nil, t.Stop()

	case transport.OpSetEventMask:
		var a EventMaskArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.SetEventMask(a.Mask)

	case transport.OpSetPolicy:
		var a PolicyArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.SetConnectionPolicy(a.Policy)

	case transport.OpDeleteProfile:
		var a DeleteProfileArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.DeleteProfile(a.Index)

	case transport.OpConnect:
		var a ConnectArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.Connect(a.Security, a.SSID, a.Key)

	case transport.OpDisconnect:
		return nil, t.Disconnect()

	case transport.OpSetScanParams:
		var a ScanParamsArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.SetScanParams(a.Params)

	case transport.OpScanResult:
		rec, err := t.ScanResult()
		return rec, err

	case transport.OpStatus:
		st, err := t.Status()
		return StatusResult{Status: st}, err

	case transport.OpCreateNVMemEntry:
		var a NVMemArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.CreateNVMemEntry(a.FileID, a.Size)

	case transport.OpWriteAESKey:
		var a AESKeyArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		if len(a.Key) != transport.AESKeySize {
			return nil, fmt.Errorf("aes key is %d bytes, want %d", len(a.Key), transport.AESKeySize)
		}
		var key [transport.AESKeySize]byte
		copy(key[:], a.Key)
		return nil, t.WriteAESKey(key)

	case transport.OpSetPrefix:
		var a PrefixArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		if len(a.Prefix) != 3 {
			return nil, fmt.Errorf("prefix %q is not 3 bytes", a.Prefix)
		}
		var prefix [3]byte
		copy(prefix[:], a.Prefix)
		return nil, t.SetProvisioningPrefix(prefix)

	case transport.OpStartProvisioning:
		return nil, t.StartProvisioning()

	case transport.OpProcessProvision:
		return nil, t.ProcessProvisioning()

	case transport.OpIPConfig:
		cfg, err := t.IPConfig()
		return cfg, err

	case transport.OpPingSend:
		var a PingArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.PingSend(a.IP, a.Attempts, a.Size, a.Timeout)

	case transport.OpGetHostByName:
		var a HostArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		addr, err := t.GetHostByName(a.Name)
		return AddrResult{Addr: addr}, err

	case transport.OpMDNSAdvertise:
		var a MDNSArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.MDNSAdvertise(a.Enable, a.Name)

	case transport.OpSocket:
		var a SocketArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		sd, err := t.Socket(a.Family, a.Type, a.Protocol)
		return SocketResult{Socket: sd}, err

	case transport.OpConnectSocket:
		var a ConnectSocketArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.ConnectSocket(a.Socket, a.Addr)

	case transport.OpSend:
		var a SendArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		n, err := t.Send(a.Socket, a.Data, a.Flags)
		return CountResult{N: n}, err

	case transport.OpRecv:
		var a RecvArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		size := a.Max
		if size <= 0 || size > MaxRecv {
			size = MaxRecv
		}
		buf := make([]byte, size)
		n, err := t.Recv(a.Socket, buf, a.Flags)
		if n < 0 {
			n = 0
		}
		return DataResult{Data: buf[:n]}, err

	case transport.OpSelect:
		var a SelectArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		ready, err := t.Select(a.Socket, a.Timeout)
		return ReadyResult{Ready: ready}, err

	case transport.OpCloseSocket:
		var a CloseSocketArgs
		if err := req.DecodeArgs(&a); err != nil {
			return nil, err
		}
		return nil, t.CloseSocket(a.Socket)

	case transport.OpPoll:
		return nil, t.Poll()
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownOp, req.Op)
}
