// File: transport/datagram/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import (
	"errors"
	"io"
)

var (
	// ErrReadPending is returned when a fill callback is already registered.
	ErrReadPending = errors.New("datagram: read pending")
	// ErrWritePending is returned when a write is already in progress.
	ErrWritePending = errors.New("datagram: write pending")
)

// EOFError reports a transport failure as end of stream. It matches io.EOF
// with errors.Is and unwraps to the transport error.
type EOFError struct {
	Op  string
	Err error
}

func (e *EOFError) Error() string {
	if e.Err == nil {
		return "datagram: " + e.Op + ": EOF"
	}
	return "datagram: " + e.Op + ": EOF: " + e.Err.Error()
}

func (e *EOFError) Unwrap() error { return e.Err }

func (e *EOFError) Is(target error) bool { return target == io.EOF }
