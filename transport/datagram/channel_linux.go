// File: transport/datagram/channel_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux UDP channel on a raw non-blocking socket.

package datagram

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/momentics/hioload-h3/api"
	"golang.org/x/sys/unix"
)

// UDPChannel is a Channel backed by a non-blocking UDP socket.
type UDPChannel struct {
	fd        int
	v6        bool
	local     netip.AddrPort
	closed    atomic.Bool
	truncated atomic.Uint64
}

// ListenUDP binds a non-blocking UDP socket to addr ("host:port").
// IPv6 and unspecified-IPv6 binds are dual-stack.
func ListenUDP(addr string, recvBuffer int) (*UDPChannel, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	ap := ua.AddrPort()
	domain := unix.AF_INET
	v6 := !ap.Addr().Unmap().Is4()
	if v6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if v6 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	if recvBuffer > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuffer)
	}
	if err := unix.Bind(fd, toSockaddr(ap, v6)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", ap, err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return &UDPChannel{fd: fd, v6: v6, local: fromSockaddr(sa)}, nil
}

// ReceiveFrom implements Channel. Datagrams longer than p are dropped and
// counted; the next queued datagram is returned instead.
func (c *UDPChannel) ReceiveFrom(p []byte) (int, netip.AddrPort, error) {
	for {
		n, sa, err := unix.Recvfrom(c.fd, p, unix.MSG_DONTWAIT|unix.MSG_TRUNC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return 0, netip.AddrPort{}, nil
			}
			return 0, netip.AddrPort{}, fmt.Errorf("recvfrom: %w", err)
		}
		if n > len(p) {
			c.truncated.Add(1)
			continue
		}
		from := fromSockaddr(sa)
		if !from.IsValid() {
			return 0, netip.AddrPort{}, nil
		}
		return n, from, nil
	}
}

// Truncated returns how many datagrams were dropped for not fitting the
// receive buffer.
func (c *UDPChannel) Truncated() uint64 { return c.truncated.Load() }

// SendTo implements Channel.
func (c *UDPChannel) SendTo(p []byte, to netip.AddrPort) (int, error) {
	if !c.v6 && !to.Addr().Unmap().Is4() {
		return 0, fmt.Errorf("sendto %s: %w", to, api.ErrNotSupported)
	}
	err := unix.Sendto(c.fd, p, unix.MSG_DONTWAIT, toSockaddr(to, c.v6))
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOBUFS) {
			return 0, nil
		}
		return 0, fmt.Errorf("sendto %s: %w", to, err)
	}
	return len(p), nil
}

// LocalAddr implements Channel.
func (c *UDPChannel) LocalAddr() netip.AddrPort { return c.local }

// Fd implements Channel.
func (c *UDPChannel) Fd() int { return c.fd }

// Close closes the socket; subsequent calls return api.ErrClosed.
func (c *UDPChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return api.ErrClosed
	}
	return unix.Close(c.fd)
}

func toSockaddr(ap netip.AddrPort, v6 bool) unix.Sockaddr {
	if v6 {
		return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
	}
	return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().Unmap().As4()}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr).Unmap(), uint16(a.Port))
	default:
		return netip.AddrPort{}
	}
}
