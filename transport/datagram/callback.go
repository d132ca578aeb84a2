// File: transport/datagram/callback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import "github.com/momentics/hioload-h3/reactor"

// Callback completes an asynchronous fill or write.
type Callback interface {
	Succeeded()
	Failed(err error)
	// InvocationType classifies the callback for the selector's executors.
	InvocationType() reactor.InvocationType
}

type funcCallback struct {
	invocation reactor.InvocationType
	succeeded  func()
	failed     func(error)
}

// NewCallback adapts functions to a Callback. Nil functions are skipped.
func NewCallback(t reactor.InvocationType, succeeded func(), failed func(error)) Callback {
	return &funcCallback{invocation: t, succeeded: succeeded, failed: failed}
}

func (c *funcCallback) Succeeded() {
	if c.succeeded != nil {
		c.succeeded()
	}
}

func (c *funcCallback) Failed(err error) {
	if c.failed != nil {
		c.failed(err)
	}
}

func (c *funcCallback) InvocationType() reactor.InvocationType { return c.invocation }

// invocationOf treats a missing callback as blocking.
func invocationOf(cb Callback) reactor.InvocationType {
	if cb == nil {
		return reactor.Blocking
	}
	return cb.InvocationType()
}
