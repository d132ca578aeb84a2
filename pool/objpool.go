// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// Recycler keeps values of one kind for reuse across datagrams. Values are
// normalized by the reset hook when they come back, so Get never returns a
// value still carrying a previous owner's state.
type Recycler[T any] struct {
	free  sync.Pool
	reset func(T) T
}

// NewRecycler creates a Recycler. newFn builds a value when none is free;
// reset, if not nil, runs on every value passed to Recycle.
func NewRecycler[T any](newFn func() T, reset func(T) T) *Recycler[T] {
	r := &Recycler[T]{reset: reset}
	r.free.New = func() any { return newFn() }
	return r
}

// Take returns a free value or a new one.
func (r *Recycler[T]) Take() T { return r.free.Get().(T) }

// Recycle hands v back for reuse.
func (r *Recycler[T]) Recycle(v T) {
	if r.reset != nil {
		v = r.reset(v)
	}
	r.free.Put(v)
}
