// File: reactor/selectable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts between the selector and the endpoints it drives.

package reactor

import "errors"

// ErrCancelledKey is returned when a cancelled registration is used.
var ErrCancelledKey = errors.New("reactor: cancelled key")

// Dispatch is the capability handed to dispatch-side callbacks. A Selector
// creates one per run and passes it only from its dispatch goroutine.
type Dispatch struct {
	owner any
}

// NewDispatch creates a dispatch token for owner. Demultiplexers other than
// Selector (for example test harnesses) use it to drive Selectables.
func NewDispatch(owner any) *Dispatch {
	return &Dispatch{owner: owner}
}

// Owner returns the demultiplexer that issued the token.
func (d *Dispatch) Owner() any { return d.owner }

// Key is an OS registration of one descriptor with a demultiplexer.
type Key interface {
	// InterestOps applies ops to the OS registration. Dispatch goroutine only.
	InterestOps(ops Ops) error
	// ReadyOps returns the ops reported by the last poll.
	ReadyOps() Ops
	// Interest returns the ops last applied, safe from any goroutine.
	Interest() Ops
	// IsValid reports whether the key has not been cancelled.
	IsValid() bool
	// Cancel removes the registration; idempotent, any goroutine.
	Cancel()
}

// Selectable is attached to a Key and reacts to readiness.
type Selectable interface {
	// OnSelected consumes the ready ops and returns the work to run, or nil.
	OnSelected(d *Dispatch) Task
	// UpdateKey applies pending interest changes to the key.
	UpdateKey(d *Dispatch)
	// ReplaceKey swaps the registration after the demultiplexer re-registered it.
	ReplaceKey(d *Dispatch, key Key)
}

// Update is an action executed once on the dispatch goroutine.
type Update func(d *Dispatch)

// Demultiplexer is the boundary endpoints use to reach the dispatch goroutine.
type Demultiplexer interface {
	// Submit schedules u on the dispatch goroutine without blocking.
	Submit(u Update)
	// DestroyEndPoint is called once after an endpoint finished closing.
	DestroyEndPoint(s Selectable, cause error)
}

// Executor runs tasks off the dispatch goroutine.
type Executor interface {
	Submit(task func()) error
}
