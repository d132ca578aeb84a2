// File: transport/datagram/fill_interest.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-h3/reactor"
)

// FillInterest holds at most one callback waiting for the endpoint to become
// readable. Registering asks the endpoint for read interest.
type FillInterest struct {
	mu        sync.Mutex
	cb        Callback
	needsFill func()
}

func newFillInterest(needsFill func()) *FillInterest {
	return &FillInterest{needsFill: needsFill}
}

// Register arms cb. It fails with ErrReadPending while another callback is armed.
func (f *FillInterest) Register(cb Callback) error {
	if cb == nil {
		return fmt.Errorf("datagram: fill interest: nil callback")
	}
	f.mu.Lock()
	if f.cb != nil {
		f.mu.Unlock()
		return ErrReadPending
	}
	f.cb = cb
	f.mu.Unlock()
	f.needsFill()
	return nil
}

// Fillable fires the armed callback once. Reports whether one was armed.
func (f *FillInterest) Fillable() bool {
	cb := f.take()
	if cb == nil {
		return false
	}
	cb.Succeeded()
	return true
}

// IsInterested reports whether a callback is armed.
func (f *FillInterest) IsInterested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb != nil
}

// CallbackInvocationType classifies the armed callback.
func (f *FillInterest) CallbackInvocationType() reactor.InvocationType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return invocationOf(f.cb)
}

// OnFail fails the armed callback with err. Reports whether one was armed.
func (f *FillInterest) OnFail(err error) bool {
	cb := f.take()
	if cb == nil {
		return false
	}
	cb.Failed(err)
	return true
}

// OnClose fails any armed callback.
func (f *FillInterest) OnClose(cause error) {
	f.OnFail(cause)
}

func (f *FillInterest) take() Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb := f.cb
	f.cb = nil
	return cb
}

func (f *FillInterest) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("FillInterest@%p{%v}", f, f.cb != nil)
}
