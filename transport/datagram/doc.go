// Package datagram
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor-driven endpoint multiplexing many peers over one non-blocking UDP
// socket. Received datagrams are prefixed with the sender's encoded address;
// flushed buffer sequences start with the destination's encoded address.
//
// Interest bookkeeping is split in two tiers: the ops applied to the OS
// registration are touched only on the selector's dispatch goroutine, while
// the requested ops and the pending-update flag are guarded by one short
// mutex and may be changed from any goroutine.
package datagram
