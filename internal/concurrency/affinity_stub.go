//go:build !linux
// +build !linux

// File: internal/concurrency/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for unsupported platforms.

package concurrency

import (
	"fmt"

	"github.com/momentics/hioload-h3/api"
)

func platformPinCurrentThread(int) (func() error, error) {
	return nil, fmt.Errorf("concurrency: pin: %w", api.ErrNotSupported)
}

// CurrentAffinity is not available on this platform.
func CurrentAffinity() ([]int, error) {
	return nil, api.ErrNotSupported
}
