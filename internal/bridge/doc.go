// Package bridge serves a chip to a remote host over a websocket.
//
// The bridge owns one transport.Transport, normally a simulated chip, and
// lets exactly one remote host drive it at a time. A second host is refused
// with 409 Conflict until the first disconnects.
//
// # Session Flow
//
// Every binary websocket message is one protocol frame. For each request the
// bridge:
//  1. Parses and validates the frame
//  2. Runs the command against the chip (protocol.Dispatch)
//  3. Writes any chip events raised by the command as event frames
//  4. Writes the response frame with the request's sequence number
//
// Chip events only fire inside Poll, so a remote host receives events
// exactly when it polls, the same as a host wired to the chip directly.
//
// # Usage Example
//
//	chip := sim.New(sim.Options{AccessPoints: aps})
//	srv, err := bridge.New(&bridge.Config{Port: 7681, Name: "kitchen"}, chip)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Start blocks until shutdown signal or error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Discovery
//
// With a Name set the bridge registers itself over mDNS as a
// "_simplelink._tcp" service so slctl can find it with "slctl discover".
//
// # Captures
//
// With CaptureDir set every frame in both directions is appended to a
// capture-<timestamp>.jsonl file with its decoded header and raw bytes.
//
// # Graceful Shutdown
//
// The bridge handles SIGINT and SIGTERM:
//  1. Withdraw the mDNS advertisement
//  2. Close the active session with a going-away close frame
//  3. Stop accepting new connections
//  4. Wait for the session goroutine to finish
package bridge
