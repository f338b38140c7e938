package sim

import (
	"bytes"
	"fmt"
)

// Peer is the remote end of a simulated socket. Receive gets every chunk
// the chip sends and returns the reply, and whether the peer closes after
// replying.
type Peer interface {
	Receive(p []byte) (reply []byte, closeAfter bool)
}

// PeerFactory creates the Peer for one connection.
type PeerFactory func() Peer

// PeerFunc adapts a function to a Peer.
type PeerFunc func(p []byte) ([]byte, bool)

// Receive calls f.
func (f PeerFunc) Receive(p []byte) ([]byte, bool) { return f(p) }

// Echo returns a factory of peers that send back what they receive.
func Echo() PeerFactory {
	return func() Peer {
		return PeerFunc(func(p []byte) ([]byte, bool) {
			return p, false
		})
	}
}

// HTTPServer returns a factory of peers that answer the first request with
// body and then close, like an HTTP/1.0 server.
func HTTPServer(body string) PeerFactory {
	return func() Peer {
		return &httpPeer{body: body}
	}
}

type httpPeer struct {
	body    string
	request bytes.Buffer
	done    bool
}

func (h *httpPeer) Receive(p []byte) ([]byte, bool) {
	if h.done {
		return nil, false
	}
	h.request.Write(p)
	req := h.request.Bytes()
	if !bytes.Contains(req, []byte("\r\n\r\n")) && !bytes.Contains(req, []byte("\n\r\n\r")) {
		return nil, false
	}
	h.done = true
	resp := fmt.Sprintf("HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s", len(h.body), h.body)
	return []byte(resp), true
}
