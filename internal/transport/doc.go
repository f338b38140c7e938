// Package transport defines the host-driver surface of a SimpleLink WiFi
// co-processor.
//
// The chip is reached over a narrow command/event channel. Every command is a
// synchronous call that either returns a result or blocks until the chip's
// reply arrives. Unsolicited chip events (link up/down, DHCP lease, socket
// peer close, ping reports) are delivered through a single EventHandler.
//
// # Event Delivery
//
// Events are never delivered on a goroutine of their own. A Transport queues
// pending events and hands them to the registered handler from inside Poll,
// in the caller's goroutine:
//
//	t.SetEventHandler(state.HandleEvent)
//	for !state.LinkUp() {
//	    _ = t.Poll()
//	    time.Sleep(10 * time.Millisecond)
//	}
//
// Poll is therefore the only point where chip state can change under the
// caller's feet.
//
// # Implementations
//
//   - transport/sim: an in-memory chip used by tests and by the bridge daemon
//   - transport/remote: a websocket client to a bridge daemon
//
// # Addresses
//
// Socket addresses use the chip's sockaddr layout. NewSockAddr writes the
// port big-endian into Data[0:2] followed by the IPv4 octets in Data[2:6]:
//
//	addr := transport.NewSockAddr(netip.MustParseAddr("10.0.0.7"), 80)
package transport
