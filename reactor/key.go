// File: reactor/key.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"sync/atomic"
)

// selectionKey is the Selector's Key implementation.
type selectionKey struct {
	fd         int
	selector   *Selector
	generation uint64
	interest   atomic.Uint32
	ready      atomic.Uint32
	cancelled  atomic.Bool
	attachment Selectable
}

func (k *selectionKey) InterestOps(ops Ops) error {
	if k.cancelled.Load() {
		return ErrCancelledKey
	}
	if err := k.selector.poller.mod(k.fd, ops); err != nil {
		return fmt.Errorf("reactor: interest ops fd=%d: %w", k.fd, err)
	}
	k.interest.Store(uint32(ops))
	return nil
}

func (k *selectionKey) ReadyOps() Ops { return Ops(k.ready.Load()) }

func (k *selectionKey) Interest() Ops { return Ops(k.interest.Load()) }

func (k *selectionKey) IsValid() bool { return !k.cancelled.Load() }

func (k *selectionKey) Cancel() {
	if !k.cancelled.CompareAndSwap(false, true) {
		return
	}
	k.selector.Submit(func(*Dispatch) {
		k.selector.deregister(k)
	})
}

func (k *selectionKey) String() string {
	return fmt.Sprintf("key{fd=%d,io=%s,ro=%s,valid=%t}", k.fd, k.Interest(), k.ReadyOps(), k.IsValid())
}

// SafeInterestOps renders a key's interest for dumps, tolerating nil keys.
func SafeInterestOps(k Key) string {
	if k == nil {
		return "-"
	}
	return k.Interest().String()
}

// SafeReadyOps renders a key's ready ops for dumps, tolerating nil keys.
func SafeReadyOps(k Key) string {
	if k == nil {
		return "-"
	}
	return k.ReadyOps().String()
}
