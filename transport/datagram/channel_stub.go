//go:build !linux
// +build !linux

// File: transport/datagram/channel_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import (
	"fmt"

	"github.com/momentics/hioload-h3/api"
)

// UDPChannel is unavailable on this platform.
type UDPChannel struct{ Channel }

// ListenUDP is not supported on this platform.
func ListenUDP(addr string, recvBuffer int) (*UDPChannel, error) {
	return nil, fmt.Errorf("datagram: listen %s: %w", addr, api.ErrNotSupported)
}

// Truncated always returns 0 on this platform.
func (c *UDPChannel) Truncated() uint64 { return 0 }
