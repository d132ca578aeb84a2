package datagram_test

import (
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-h3/api"
	"github.com/momentics/hioload-h3/reactor"
)

type fakeKey struct {
	mu        sync.Mutex
	interest  reactor.Ops
	ready     reactor.Ops
	applied   []reactor.Ops
	cancelled atomic.Bool
	failWith  error
}

func (k *fakeKey) InterestOps(ops reactor.Ops) error {
	if k.cancelled.Load() {
		return reactor.ErrCancelledKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failWith != nil {
		return k.failWith
	}
	k.interest = ops
	k.applied = append(k.applied, ops)
	return nil
}

func (k *fakeKey) ReadyOps() reactor.Ops {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ready
}

func (k *fakeKey) Interest() reactor.Ops {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.interest
}

func (k *fakeKey) IsValid() bool { return !k.cancelled.Load() }

func (k *fakeKey) Cancel() { k.cancelled.Store(true) }

func (k *fakeKey) setReady(ops reactor.Ops) {
	k.mu.Lock()
	k.ready = ops
	k.mu.Unlock()
}

func (k *fakeKey) appliedOps() []reactor.Ops {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]reactor.Ops(nil), k.applied...)
}

// fakeDemux queues updates until runUpdates plays them on a dispatch token.
type fakeDemux struct {
	mu        sync.Mutex
	updates   []reactor.Update
	submitted int
	destroyed []error
	dispatch  *reactor.Dispatch
}

func newFakeDemux() *fakeDemux {
	d := &fakeDemux{}
	d.dispatch = reactor.NewDispatch(d)
	return d
}

func (d *fakeDemux) Submit(u reactor.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, u)
	d.submitted++
}

func (d *fakeDemux) DestroyEndPoint(_ reactor.Selectable, cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = append(d.destroyed, cause)
}

func (d *fakeDemux) runUpdates() int {
	d.mu.Lock()
	pending := d.updates
	d.updates = nil
	d.mu.Unlock()
	for _, u := range pending {
		u(d.dispatch)
	}
	return len(pending)
}

func (d *fakeDemux) submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

func (d *fakeDemux) destroyedCauses() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.destroyed...)
}

type inbound struct {
	from    netip.AddrPort
	payload []byte
}

type sent struct {
	to      netip.AddrPort
	payload []byte
}

// fakeChannel delivers queued datagrams and accepts up to capacity sends.
type fakeChannel struct {
	mu       sync.Mutex
	inbox    []inbound
	outbox   []sent
	capacity int
	recvErr  error
	sendErr  error
	closed   bool
}

func (c *fakeChannel) ReceiveFrom(p []byte) (int, netip.AddrPort, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recvErr != nil {
		return 0, netip.AddrPort{}, c.recvErr
	}
	if len(c.inbox) == 0 {
		return 0, netip.AddrPort{}, nil
	}
	d := c.inbox[0]
	c.inbox = c.inbox[1:]
	return copy(p, d.payload), d.from, nil
}

func (c *fakeChannel) SendTo(p []byte, to netip.AddrPort) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	if c.capacity == 0 {
		return 0, nil
	}
	c.capacity--
	c.outbox = append(c.outbox, sent{to: to, payload: append([]byte(nil), p...)})
	return len(p), nil
}

func (c *fakeChannel) LocalAddr() netip.AddrPort {
	return netip.MustParseAddrPort("127.0.0.1:4433")
}

func (c *fakeChannel) Fd() int { return 42 }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.ErrClosed
	}
	c.closed = true
	return nil
}

func (c *fakeChannel) deliver(from netip.AddrPort, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append(c.inbox, inbound{from: from, payload: payload})
}

func (c *fakeChannel) setCapacity(n int) {
	c.mu.Lock()
	c.capacity = n
	c.mu.Unlock()
}

func (c *fakeChannel) sentDatagrams() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.outbox...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
