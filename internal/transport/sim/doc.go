// Package sim is an in-memory SimpleLink chip implementing
// transport.Transport.
//
// The chip keeps a queue of events with due times measured against
// Options.Now. Poll delivers the due ones, so a test that shares a fake
// clock between the chip and the wlan.Manager controls exactly when the
// link comes up, DHCP completes or a ping report arrives.
//
// Networks in range, the DHCP lease, resolvable hosts and socket peers are
// configured through Options. Any command can be made to fail with Fail,
// and Calls records the commands issued, in order.
//
// Socket waits (Recv and Select) use wall time, the way the chip's own
// socket timeouts do.
package sim
