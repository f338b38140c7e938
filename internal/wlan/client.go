package wlan

import (
	"errors"
	"io"
	"net/netip"

	"go.uber.org/zap"

	"github.com/muurk/simplelink/internal/linkstate"
	"github.com/muurk/simplelink/internal/logging"
	"github.com/muurk/simplelink/internal/transport"
)

const unbound int32 = -1

// noCopy makes go vet flag copies of a Client. A copied Client would share
// the chip handle and close it twice.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Client is a byte stream over one chip socket. It owns the socket handle;
// only the Client that opened it may close it. Use Observer for a
// non-owning view.
type Client struct {
	_ noCopy

	t     transport.Transport
	state *linkstate.State
	cfg   *Config

	handle int32
	rx     [RxBufferSize]byte
	fill   int
	cursor int
}

// SocketObserver is a non-owning snapshot of a Client for diagnostics.
type SocketObserver struct {
	Handle   int32
	Bound    bool
	Buffered int
}

// ConnectTCP opens a TCP socket to ip:port.
func (m *Manager) ConnectTCP(ip netip.Addr, port uint16) (*Client, error) {
	return m.connectSocket("connect tcp", transport.SockStream, transport.ProtoTCP, ip, port)
}

// ConnectUDP opens a connected UDP socket to ip:port.
func (m *Manager) ConnectUDP(ip netip.Addr, port uint16) (*Client, error) {
	return m.connectSocket("connect udp", transport.SockDgram, transport.ProtoUDP, ip, port)
}

func (m *Manager) connectSocket(op string, typ transport.SockType, proto transport.Protocol, ip netip.Addr, port uint16) (*Client, error) {
	if !m.initialized.Load() {
		return nil, NewNotInitializedError(op)
	}
	if !ip.Is4() {
		return nil, NewInvalidArgumentError(op, "only IPv4 destinations are supported")
	}

	sd, err := m.t.Socket(transport.AFInet, typ, proto)
	logging.LogTransportCall(transport.OpSocket, err)
	if err != nil {
		return nil, NewTransportError(op, transport.OpSocket, err)
	}

	addr := transport.NewSockAddr(ip, port)
	logging.Debug("Connecting socket",
		zap.Int32("socket", sd),
		zap.Stringer("addr", addr.AddrPort()),
	)
	err = m.t.ConnectSocket(sd, addr)
	logging.LogTransportCall(transport.OpConnectSocket, err)
	if err != nil {
		if cerr := m.t.CloseSocket(sd); cerr != nil {
			logging.LogTransportCall(transport.OpCloseSocket, cerr)
		}
		return nil, NewTransportError(op, transport.OpConnectSocket, err)
	}

	// The slot may carry a close flag from a previous socket.
	m.state.ClearPeerClosed(sd)

	return &Client{
		t:      m.t,
		state:  m.state,
		cfg:    m.cfg,
		handle: sd,
	}, nil
}

// Handle returns the chip socket handle, or -1 once closed.
func (c *Client) Handle() int32 {
	return c.handle
}

// Observer returns a non-owning view of the client.
func (c *Client) Observer() SocketObserver {
	return SocketObserver{
		Handle:   c.handle,
		Bound:    c.handle != unbound,
		Buffered: c.buffered(),
	}
}

func (c *Client) buffered() int {
	if c.fill > 0 && c.cursor < c.fill {
		return c.fill - c.cursor
	}
	return 0
}

// Send issues a single chip send. Short writes are not retried.
func (c *Client) Send(p []byte, flags uint32) (int, error) {
	if c.handle == unbound {
		return 0, io.ErrClosedPipe
	}
	n, err := c.t.Send(c.handle, p, flags)
	if err != nil {
		return n, NewTransportError("send", transport.OpSend, err)
	}
	return n, nil
}

// Write sends p in TxBufferSize chunks until all of it is written or a send
// fails.
func (c *Client) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		end := written + TxBufferSize
		if end > len(p) {
			end = len(p)
		}
		n, err := c.Send(p[written:end], 0)
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// WriteString writes s.
func (c *Client) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// WriteLine writes s followed by "\n\r".
func (c *Client) WriteLine(s string) (int, error) {
	return c.Write([]byte(s + "\n\r"))
}

// Recv is the unbuffered receive. It bypasses the read buffer.
func (c *Client) Recv(p []byte, flags uint32) (int, error) {
	if c.handle == unbound {
		return 0, io.ErrClosedPipe
	}
	n, err := c.t.Recv(c.handle, p, flags)
	if err != nil {
		return n, NewTransportError("recv", transport.OpRecv, err)
	}
	return n, nil
}

// refill refills the buffer. It polls for events first so a peer close can be
// observed, then blocks in recv. A reset connection closes the socket.
func (c *Client) refill() error {
	for c.buffered() == 0 {
		if c.handle == unbound {
			return io.EOF
		}
		if err := c.t.Poll(); err != nil {
			logging.Warn("Poll failed", zap.String("op", "read"), zap.Error(err))
		}
		n, err := c.t.Recv(c.handle, c.rx[:], 0)
		if errors.Is(err, transport.ErrConnectionReset) {
			sd := c.handle
			c.release("reset")
			return NewPeerClosedError(sd)
		}
		if err != nil {
			return NewTransportError("read", transport.OpRecv, err)
		}
		c.fill, c.cursor = n, 0
		if n > 0 {
			logging.LogRawBytes("Socket data", c.rx[:n])
		}
	}
	return nil
}

// ReadByte returns the next buffered byte, blocking until one arrives. On a
// reset connection it closes the socket and returns 0 with a PeerClosed
// error.
func (c *Client) ReadByte() (byte, error) {
	if err := c.refill(); err != nil {
		return 0, err
	}
	b := c.rx[c.cursor]
	c.cursor++
	return b, nil
}

// Read implements io.Reader over the receive buffer. It returns io.EOF once
// the socket is closed and the buffer is drained.
func (c *Client) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.refill(); err != nil {
		if IsPeerClosed(err) {
			return 0, io.EOF
		}
		return 0, err
	}
	n := copy(p, c.rx[c.cursor:c.fill])
	c.cursor += n
	return n, nil
}

// Available returns the number of buffered bytes. With an empty buffer it
// polls the socket for SelectTimeout and returns 1 if data is waiting, 0
// otherwise.
func (c *Client) Available() int {
	if c.handle == unbound {
		return 0
	}
	if n := c.buffered(); n > 0 {
		return n
	}
	ready, err := c.t.Select(c.handle, c.cfg.SelectTimeout)
	if err != nil {
		logging.LogTransportCall(transport.OpSelect, err)
		return 0
	}
	if ready {
		return 1
	}
	return 0
}

// Connected reports whether the socket is usable. Once the buffer is
// drained and the peer has closed, it releases the handle and returns false.
// A closed socket with buffered data stays connected until drained.
func (c *Client) Connected() bool {
	if c.handle == unbound {
		return false
	}
	if c.Available() == 0 && c.state.PeerClosed(c.handle) {
		sd := c.handle
		c.release("peer closed")
		c.state.ClearPeerClosed(sd)
		return false
	}
	return true
}

// Close releases the chip socket and drops buffered data. Closing an
// unbound client is a no-op.
func (c *Client) Close() error {
	if c.handle == unbound {
		return nil
	}
	sd := c.handle
	c.handle = unbound
	c.fill, c.cursor = 0, 0
	err := c.t.CloseSocket(sd)
	logging.LogTransportCall(transport.OpCloseSocket, err)
	if err != nil {
		return NewTransportError("close", transport.OpCloseSocket, err)
	}
	return nil
}

// release closes the handle after the peer went away. The handle is unbound
// even when the chip rejects the close.
func (c *Client) release(reason string) {
	if err := c.Close(); err != nil {
		logging.Debug("Socket release failed", zap.String("reason", reason), zap.Error(err))
	}
}
