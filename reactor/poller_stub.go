//go:build !linux
// +build !linux

// File: reactor/poller_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub poller for platforms without an epoll backend.

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-h3/api"
)

func newPlatformPoller() (poller, error) {
	return nil, fmt.Errorf("reactor: datagram selector: %w", api.ErrNotSupported)
}
