// File: transport/datagram/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import "net/netip"

// Channel is a non-blocking datagram socket.
type Channel interface {
	// ReceiveFrom reads one datagram into p. When none is queued it returns
	// an invalid from address and a nil error.
	ReceiveFrom(p []byte) (n int, from netip.AddrPort, err error)
	// SendTo sends p as one datagram. It returns 0 when the socket buffer
	// is full.
	SendTo(p []byte, to netip.AddrPort) (int, error)
	// LocalAddr returns the bound address.
	LocalAddr() netip.AddrPort
	// Fd returns the descriptor registered with the selector.
	Fd() int
	Close() error
}
