// Package remote implements transport.Transport over a websocket session
// with a bridge daemon.
//
// Every chip command is one request frame answered by one response frame.
// Events the bridge writes ahead of a response are queued and handed to the
// event handler only from Poll, so the remote chip behaves like a local one:
//
//	t, err := remote.Dial(ctx, "ws://192.168.1.20:7681/bridge", remote.Options{})
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//	m := wlan.New(t, nil)
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/protocol"
	"github.com/muurk/simplelink/internal/transport"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds one request/response exchange. It must exceed
// the bridge chip's receive timeout.
const DefaultCallTimeout = 30 * time.Second

// ErrBusy is returned by Dial when another host holds the bridge's chip.
var ErrBusy = errors.New("bridge chip already in use")

// Options configures a bridge connection.
type Options struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Header http.Header
	// CallTimeout bounds one command. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration
}

// Transport is a chip reached through a bridge.
type Transport struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	url     string
	timeout time.Duration
	closed  bool

	handler transport.EventHandler
	queued  []transport.Event
}

var _ transport.Transport = (*Transport)(nil)

// Dial opens a session with the bridge at url.
func Dial(ctx context.Context, url string, opts Options) (*Transport, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, fmt.Errorf("dial %s: %w", url, ErrBusy)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	logging.LogConnection(url, "bridge_connected")
	return &Transport{conn: conn, url: url, timeout: timeout}, nil
}

// URL returns the bridge endpoint.
func (t *Transport) URL() string {
	return t.url
}

// Close ends the session. Calls after Close return transport.ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	logging.LogConnection(t.url, "bridge_closed")
	return t.conn.Close()
}

// call runs one command on the bridge. out receives the result when non-nil.
func (t *Transport) call(op string, args, out any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("%s: %w", op, transport.ErrClosed)
	}

	req, err := protocol.NewRequest(op, args)
	if err != nil {
		return err
	}
	data, err := req.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deadline := time.Now().Add(t.timeout)
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return t.fail(op, err)
	}
	logging.LogBridgeFrame(t.url, "sent", op, data)

	_ = t.conn.SetReadDeadline(deadline)
	for {
		messageType, msg, err := t.conn.ReadMessage()
		if err != nil {
			return t.fail(op, err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		f, err := protocol.ParseFrame(msg)
		if err != nil {
			logging.Warn("Dropping malformed frame from bridge", zap.String("op", op), zap.Error(err))
			continue
		}
		logging.LogBridgeFrame(t.url, "received", f.Op, msg)

		switch f.Kind {
		case protocol.KindEvent:
			ev, err := f.DecodeEvent()
			if err != nil {
				logging.Warn("Dropping undecodable event", zap.Error(err))
				continue
			}
			t.queued = append(t.queued, ev)
		case protocol.KindResponse:
			if f.Seq != req.Seq {
				logging.Warn("Dropping stale response",
					zap.String("op", f.Op),
					zap.Uint32("seq", f.Seq),
					zap.Uint32("want_seq", req.Seq),
				)
				continue
			}
			return f.DecodeResponse(out)
		default:
			logging.Warn("Dropping unexpected frame", zap.String("frame", f.String()))
		}
	}
}

// fail closes the session after an I/O error. A response may be lost, so
// later requests cannot be matched reliably.
func (t *Transport) fail(op string, err error) error {
	t.closed = true
	_ = t.conn.Close()
	logging.Error("Bridge session lost", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %v", op, transport.ErrClosed, err)
}

// SetEventHandler registers the event callback.
func (t *Transport) SetEventHandler(h transport.EventHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Poll asks the bridge to poll its chip and delivers every queued event.
// The handler runs without the transport lock held.
func (t *Transport) Poll() error {
	err := t.call(transport.OpPoll, nil, nil)

	t.mu.Lock()
	due := t.queued
	t.queued = nil
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		for _, ev := range due {
			h(ev)
		}
	}
	return err
}

func (t *Transport) Start(patch transport.PatchMode) error {
	return t.call(transport.OpStart, protocol.StartArgs{Patch: patch}, nil)
}

func (t *Transport) Stop() error {
	return t.call(transport.OpStop, nil, nil)
}

func (t *Transport) SetEventMask(mask transport.EventMask) error {
	return t.call(transport.OpSetEventMask, protocol.EventMaskArgs{Mask: mask}, nil)
}

func (t *Transport) SetConnectionPolicy(p transport.Policy) error {
	return t.call(transport.OpSetPolicy, protocol.PolicyArgs{Policy: p}, nil)
}

func (t *Transport) DeleteProfile(index int) error {
	return t.call(transport.OpDeleteProfile, protocol.DeleteProfileArgs{Index: index}, nil)
}

func (t *Transport) Connect(sec transport.Security, ssid string, key []byte) error {
	return t.call(transport.OpConnect, protocol.ConnectArgs{Security: sec, SSID: ssid, Key: key}, nil)
}

func (t *Transport) Disconnect() error {
	return t.call(transport.OpDisconnect, nil, nil)
}

func (t *Transport) SetScanParams(p transport.ScanParams) error {
	return t.call(transport.OpSetScanParams, protocol.ScanParamsArgs{Params: p}, nil)
}

func (t *Transport) ScanResult() (transport.ScanRecord, error) {
	var rec transport.ScanRecord
	err := t.call(transport.OpScanResult, nil, &rec)
	return rec, err
}

func (t *Transport) Status() (transport.ChipStatus, error) {
	var res protocol.StatusResult
	err := t.call(transport.OpStatus, nil, &res)
	return res.Status, err
}

func (t *Transport) CreateNVMemEntry(fileID uint8, size int) error {
	return t.call(transport.OpCreateNVMemEntry, protocol.NVMemArgs{FileID: fileID, Size: size}, nil)
}

func (t *Transport) WriteAESKey(key [transport.AESKeySize]byte) error {
	return t.call(transport.OpWriteAESKey, protocol.AESKeyArgs{Key: key[:]}, nil)
}

func (t *Transport) SetProvisioningPrefix(prefix [3]byte) error {
	return t.call(transport.OpSetPrefix, protocol.PrefixArgs{Prefix: string(prefix[:])}, nil)
}

func (t *Transport) StartProvisioning() error {
	return t.call(transport.OpStartProvisioning, nil, nil)
}

func (t *Transport) ProcessProvisioning() error {
	return t.call(transport.OpProcessProvision, nil, nil)
}

func (t *Transport) IPConfig() (transport.IPConfig, error) {
	var cfg transport.IPConfig
	err := t.call(transport.OpIPConfig, nil, &cfg)
	return cfg, err
}

func (t *Transport) PingSend(ip netip.Addr, attempts, size int, timeout time.Duration) error {
	return t.call(transport.OpPingSend, protocol.PingArgs{
		IP:       ip,
		Attempts: attempts,
		Size:     size,
		Timeout:  timeout,
	}, nil)
}

func (t *Transport) GetHostByName(name string) (netip.Addr, error) {
	var res protocol.AddrResult
	err := t.call(transport.OpGetHostByName, protocol.HostArgs{Name: name}, &res)
	return res.Addr, err
}

func (t *Transport) MDNSAdvertise(enable bool, name string) error {
	return t.call(transport.OpMDNSAdvertise, protocol.MDNSArgs{Enable: enable, Name: name}, nil)
}

func (t *Transport) Socket(family transport.Family, typ transport.SockType, proto transport.Protocol) (int32, error) {
	res := protocol.SocketResult{Socket: -1}
	err := t.call(transport.OpSocket, protocol.SocketArgs{Family: family, Type: typ, Protocol: proto}, &res)
	return res.Socket, err
}

func (t *Transport) ConnectSocket(sd int32, addr transport.SockAddr) error {
	return t.call(transport.OpConnectSocket, protocol.ConnectSocketArgs{Socket: sd, Addr: addr}, nil)
}

func (t *Transport) Send(sd int32, p []byte, flags uint32) (int, error) {
	var res protocol.CountResult
	err := t.call(transport.OpSend, protocol.SendArgs{Socket: sd, Data: p, Flags: flags}, &res)
	return res.N, err
}

// Recv reads at most protocol.MaxRecv bytes per call.
func (t *Transport) Recv(sd int32, p []byte, flags uint32) (int, error) {
	var res protocol.DataResult
	err := t.call(transport.OpRecv, protocol.RecvArgs{Socket: sd, Max: len(p), Flags: flags}, &res)
	return copy(p, res.Data), err
}

func (t *Transport) Select(sd int32, timeout time.Duration) (bool, error) {
	var res protocol.ReadyResult
	err := t.call(transport.OpSelect, protocol.SelectArgs{Socket: sd, Timeout: timeout}, &res)
	return res.Ready, err
}

func (t *Transport) CloseSocket(sd int32) error {
	return t.call(transport.OpCloseSocket, protocol.CloseSocketArgs{Socket: sd}, nil)
}
