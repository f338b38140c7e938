package sim

import (
	"net/netip"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

type socket struct {
	typ        transport.SockType
	connected  bool
	remote     netip.AddrPort
	peer       Peer
	rx         []byte
	peerClosed bool
	notify     chan struct{}
}

func newSocket(typ transport.SockType) *socket {
	return &socket{typ: typ, notify: make(chan struct{})}
}

// wake releases every goroutine blocked on the socket.
func (s *socket) wake() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// lookup returns the open socket sd. Callers hold c.mu.
func (c *Chip) lookup(op string, sd int32) (*socket, error) {
	if sd < 0 || int(sd) >= len(c.sockets) || c.sockets[sd] == nil {
		return nil, callErr(op, "bad socket %d", sd)
	}
	return c.sockets[sd], nil
}

// Socket allocates the lowest free socket slot.
func (c *Chip) Socket(family transport.Family, typ transport.SockType, proto transport.Protocol) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpSocket); err != nil {
		return -1, err
	}
	if !c.started {
		return -1, callErr(transport.OpSocket, "radio is stopped")
	}
	if family != transport.AFInet {
		return -1, callErr(transport.OpSocket, "unsupported family %d", family)
	}
	switch {
	case typ == transport.SockStream && proto == transport.ProtoTCP:
	case typ == transport.SockDgram && proto == transport.ProtoUDP:
	default:
		return -1, callErr(transport.OpSocket, "unsupported type %d/%d", typ, proto)
	}
	for i, s := range c.sockets {
		if s == nil {
			c.sockets[i] = newSocket(typ)
			return int32(i), nil
		}
	}
	return -1, callErr(transport.OpSocket, "out of sockets")
}

// ConnectSocket connects sd to addr. TCP needs a peer at addr; UDP without
// one silently drops what is sent.
func (c *Chip) ConnectSocket(sd int32, addr transport.SockAddr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpConnectSocket); err != nil {
		return err
	}
	s, err := c.lookup(transport.OpConnectSocket, sd)
	if err != nil {
		return err
	}
	if !c.dhcpBound(c.now()) {
		return callErr(transport.OpConnectSocket, "no lease")
	}
	if addr.Family != transport.AFInet {
		return callErr(transport.OpConnectSocket, "unsupported family %d", addr.Family)
	}
	remote := addr.AddrPort()
	factory, ok := c.opts.Peers[remote]
	if !ok && s.typ == transport.SockStream {
		return callErr(transport.OpConnectSocket, "connection refused by %s", remote)
	}
	if ok {
		s.peer = factory()
	}
	s.remote = remote
	s.connected = true
	return nil
}

// Send hands p to the peer. At most Options.MaxSend bytes are accepted per
// call.
func (c *Chip) Send(sd int32, p []byte, flags uint32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpSend); err != nil {
		return 0, err
	}
	s, err := c.lookup(transport.OpSend, sd)
	if err != nil {
		return 0, err
	}
	if !s.connected {
		return 0, callErr(transport.OpSend, "socket %d not connected", sd)
	}
	if s.peerClosed {
		return 0, &transport.CallError{Op: transport.OpSend, Code: transport.StatusConnectionReset}
	}
	n := len(p)
	if c.opts.MaxSend > 0 && n > c.opts.MaxSend {
		n = c.opts.MaxSend
	}
	if s.peer == nil || n == 0 {
		return n, nil
	}
	reply, closeAfter := s.peer.Receive(append([]byte(nil), p[:n]...))
	c.deliver(sd, s, reply, closeAfter)
	return n, nil
}

// deliver queues data from the peer and, with closeAfter, the peer close.
// Callers hold c.mu.
func (c *Chip) deliver(sd int32, s *socket, data []byte, closeAfter bool) {
	if len(data) > 0 {
		s.rx = append(s.rx, data...)
	}
	if closeAfter && !s.peerClosed {
		s.peerClosed = true
		c.emit(c.now(), transport.Event{Kind: transport.EventPeerClose, Socket: sd})
	}
	s.wake()
}

// Recv returns buffered peer data, blocking up to Options.RecvTimeout of wall
// time. Once the peer closed and the data is drained it fails with
// StatusConnectionReset.
func (c *Chip) Recv(sd int32, p []byte, flags uint32) (int, error) {
	c.mu.Lock()
	if err := c.begin(transport.OpRecv); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	deadline := time.NewTimer(c.opts.RecvTimeout)
	defer deadline.Stop()
	for {
		s, err := c.lookup(transport.OpRecv, sd)
		if err != nil {
			c.mu.Unlock()
			return 0, err
		}
		if len(s.rx) > 0 {
			n := copy(p, s.rx)
			s.rx = s.rx[n:]
			c.mu.Unlock()
			return n, nil
		}
		if s.peerClosed {
			c.mu.Unlock()
			return 0, &transport.CallError{Op: transport.OpRecv, Code: transport.StatusConnectionReset}
		}
		ch := s.notify
		c.mu.Unlock()
		select {
		case <-ch:
		case <-deadline.C:
			return 0, &transport.CallError{Op: transport.OpRecv, Code: StatusTimedOut}
		}
		c.mu.Lock()
	}
}

// Select reports whether sd has data to read, waiting up to timeout of wall
// time. A closed peer with nothing left to read is not ready.
func (c *Chip) Select(sd int32, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	if err := c.begin(transport.OpSelect); err != nil {
		c.mu.Unlock()
		return false, err
	}
	s, err := c.lookup(transport.OpSelect, sd)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if len(s.rx) > 0 {
		c.mu.Unlock()
		return true, nil
	}
	if s.peerClosed || timeout <= 0 {
		c.mu.Unlock()
		return false, nil
	}
	ch := s.notify
	c.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
	case <-t.C:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, err = c.lookup(transport.OpSelect, sd)
	if err != nil {
		return false, err
	}
	return len(s.rx) > 0, nil
}

// CloseSocket releases sd.
func (c *Chip) CloseSocket(sd int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(transport.OpCloseSocket); err != nil {
		return err
	}
	s, err := c.lookup(transport.OpCloseSocket, sd)
	if err != nil {
		return err
	}
	s.wake()
	c.sockets[sd] = nil
	return nil
}

// Deliver pushes data from the remote end into sd.
func (c *Chip) Deliver(sd int32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookup("deliver", sd)
	if err != nil {
		return err
	}
	c.deliver(sd, s, data, false)
	return nil
}

// ClosePeer closes the remote end of sd. The peer-close event is due
// immediately.
func (c *Chip) ClosePeer(sd int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookup("close peer", sd)
	if err != nil {
		return err
	}
	c.deliver(sd, s, nil, true)
	return nil
}

// OpenSockets returns the number of allocated sockets.
func (c *Chip) OpenSockets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sockets {
		if s != nil {
			n++
		}
	}
	return n
}
