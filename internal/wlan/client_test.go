package wlan

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/transport/sim"
)

var (
	echoPeer = netip.MustParseAddrPort("10.0.0.7:7")
	webPeer  = netip.MustParseAddrPort("10.0.0.8:80")
)

func socketTestbed(t *testing.T, maxSend int) *testbed {
	t.Helper()
	return linkedTestbed(t, sim.Options{
		Peers: map[netip.AddrPort]sim.PeerFactory{
			echoPeer: sim.Echo(),
			webPeer:  sim.HTTPServer("hello from the chip"),
		},
		MaxSend: maxSend,
	})
}

func TestClientEchoRoundTrip(t *testing.T) {
	tb := socketTestbed(t, 5)
	c, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatalf("ConnectTCP() error = %v", err)
	}
	defer c.Close()

	msg := strings.Repeat("0123456789", 10)
	n, err := c.WriteString(msg)
	if err != nil || n != len(msg) {
		t.Fatalf("WriteString() = %d, %v, want %d", n, err, len(msg))
	}
	if sends := tb.chip.CallCount(transport.OpSend); sends != len(msg)/5 {
		t.Errorf("sends = %d, want %d for a 5-byte send cap", sends, len(msg)/5)
	}

	var got bytes.Buffer
	for got.Len() < len(msg) {
		b, err := c.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte() after %d bytes error = %v", got.Len(), err)
		}
		got.WriteByte(b)
	}
	if got.String() != msg {
		t.Errorf("echo = %q, want %q", got.String(), msg)
	}
}

func TestClientWriteChunks(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	msg := strings.Repeat("x", 2*TxBufferSize+1)
	if _, err := c.WriteString(msg); err != nil {
		t.Fatal(err)
	}
	if sends := tb.chip.CallCount(transport.OpSend); sends != 3 {
		t.Errorf("sends = %d, want 3 chunks of at most %d bytes", sends, TxBufferSize)
	}
}

func TestClientHTTPExchange(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectTCP(webPeer.Addr(), webPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	sd := c.Handle()

	c.WriteLine("GET / HTTP/1.0")
	c.WriteLine("")

	var resp bytes.Buffer
	for c.Connected() {
		for c.Available() > 0 {
			b, err := c.ReadByte()
			if err != nil {
				t.Fatalf("ReadByte() error = %v", err)
			}
			resp.WriteByte(b)
		}
	}

	if !strings.HasSuffix(resp.String(), "hello from the chip") {
		t.Errorf("response = %q", resp.String())
	}
	if c.Handle() != -1 {
		t.Errorf("Handle() = %d after reap, want -1", c.Handle())
	}
	if n := tb.chip.CallCount(transport.OpCloseSocket); n != 1 {
		t.Errorf("close calls = %d, want 1", n)
	}
	if tb.m.State().PeerClosed(sd) {
		t.Error("peer-closed flag left set after reap")
	}

	// Further calls on a reaped client do nothing.
	if c.Connected() || c.Available() != 0 {
		t.Error("reaped client still reports data")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() after reap error = %v", err)
	}
	if n := tb.chip.CallCount(transport.OpCloseSocket); n != 1 {
		t.Errorf("close calls = %d after second Close, want 1", n)
	}
}

func TestClientConnectedKeepsBufferedData(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	c.WriteString("abc")
	b, _ := c.ReadByte()
	if b != 'a' {
		t.Fatalf("ReadByte() = %q", b)
	}

	tb.chip.ClosePeer(c.Handle())
	tb.m.Poll()

	if !c.Connected() {
		t.Fatal("Connected() = false with 2 bytes buffered")
	}
	if got := c.Available(); got != 2 {
		t.Errorf("Available() = %d, want 2", got)
	}
	c.ReadByte()
	c.ReadByte()
	if c.Connected() {
		t.Error("Connected() = true after drain and peer close")
	}
}

func TestClientReadByteOnReset(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	sd := c.Handle()
	tb.chip.ClosePeer(sd)

	b, err := c.ReadByte()
	if b != 0 || !IsPeerClosed(err) {
		t.Fatalf("ReadByte() = %d, %v, want 0 and peer closed", b, err)
	}
	if c.Handle() != -1 {
		t.Error("socket not released after reset")
	}
	if tb.chip.OpenSockets() != 0 {
		t.Errorf("chip sockets = %d, want 0", tb.chip.OpenSockets())
	}
}

func TestClientReleaseLogsCloseFailure(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		notice func(c *Client) bool
	}{
		{"reset during read", "reset", func(c *Client) bool {
			_, err := c.ReadByte()
			return IsPeerClosed(err)
		}},
		{"peer closed and drained", "peer closed", func(c *Client) bool {
			return !c.Connected()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := socketTestbed(t, 0)
			core, logs := observer.New(zapcore.DebugLevel)
			logging.SetLogger(zap.New(core))

			c, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
			if err != nil {
				t.Fatal(err)
			}
			tb.chip.ClosePeer(c.Handle())
			tb.m.Poll()
			tb.chip.Fail(transport.OpCloseSocket, -1, 1)

			if !tt.notice(c) {
				t.Fatal("client did not notice the closed peer")
			}
			if c.Handle() != -1 {
				t.Errorf("Handle() = %d, want unbound after a failed close", c.Handle())
			}
			entries := logs.FilterMessage("Socket release failed").All()
			if len(entries) != 1 {
				t.Fatalf("release failure logged %d times, want 1", len(entries))
			}
			if got := entries[0].ContextMap()["reason"]; got != tt.reason {
				t.Errorf("reason = %v, want %q", got, tt.reason)
			}
		})
	}
}

func TestClientReadEOF(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectTCP(webPeer.Addr(), webPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	c.WriteString("GET / HTTP/1.0\r\n\r\n")

	body, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.HasPrefix(body, []byte("HTTP/1.0 200 OK")) {
		t.Errorf("body = %q", body)
	}
}

func TestClientStaleCloseFlagCleared(t *testing.T) {
	tb := socketTestbed(t, 0)

	first, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	sd := first.Handle()
	tb.chip.ClosePeer(sd)
	tb.m.Poll()
	if !tb.m.State().PeerClosed(sd) {
		t.Fatal("peer close not observed")
	}
	// Closed without reaping, so the flag for sd stays set.
	first.Close()

	second, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if second.Handle() != sd {
		t.Fatalf("new socket got slot %d, want reused %d", second.Handle(), sd)
	}
	if !second.Connected() {
		t.Error("new socket reported closed by the previous socket's flag")
	}
}

func TestClientConnectFailureReleasesSocket(t *testing.T) {
	tb := socketTestbed(t, 0)

	c, err := tb.m.ConnectTCP(netip.MustParseAddr("10.0.0.99"), 80)
	if c != nil || !IsTransport(err) {
		t.Fatalf("ConnectTCP() = %v, %v, want nil and transport error", c, err)
	}
	if tb.chip.OpenSockets() != 0 {
		t.Errorf("chip sockets = %d after refused connect, want 0", tb.chip.OpenSockets())
	}

	if _, err := tb.m.ConnectTCP(netip.MustParseAddr("::1"), 80); !IsInvalidArgument(err) {
		t.Errorf("ConnectTCP(::1) error = %v, want invalid argument", err)
	}

	tb.chip.Fail(transport.OpSocket, -1, 1)
	var werr *Error
	_, err = tb.m.ConnectUDP(echoPeer.Addr(), echoPeer.Port())
	if !IsTransport(err) {
		t.Fatalf("ConnectUDP() error = %v", err)
	}
	if errors.As(err, &werr); werr.Step != transport.OpSocket {
		t.Errorf("step = %q, want %q", werr.Step, transport.OpSocket)
	}
}

func TestClientUDPWithoutPeer(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectUDP(netip.MustParseAddr("10.0.0.50"), 9999)
	if err != nil {
		t.Fatalf("ConnectUDP() error = %v", err)
	}
	defer c.Close()
	if n, err := c.WriteString("ping"); err != nil || n != 4 {
		t.Errorf("WriteString() = %d, %v", n, err)
	}
	if c.Available() != 0 {
		t.Error("data available from a silent peer")
	}
}

func TestClientObserver(t *testing.T) {
	tb := socketTestbed(t, 0)
	c, err := tb.m.ConnectTCP(echoPeer.Addr(), echoPeer.Port())
	if err != nil {
		t.Fatal(err)
	}
	c.WriteString("hey")
	c.ReadByte()

	obs := c.Observer()
	if !obs.Bound || obs.Handle != c.Handle() || obs.Buffered != 2 {
		t.Errorf("Observer() = %+v", obs)
	}
	c.Close()
	if obs := c.Observer(); obs.Bound || obs.Handle != -1 {
		t.Errorf("Observer() after Close = %+v", obs)
	}

	if _, err := c.Send([]byte("x"), 0); err != io.ErrClosedPipe {
		t.Errorf("Send() on closed client error = %v, want io.ErrClosedPipe", err)
	}
	if _, err := c.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read() on closed client error = %v, want io.EOF", err)
	}
}
