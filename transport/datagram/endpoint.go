// File: transport/datagram/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-h3/api"
	"github.com/momentics/hioload-h3/control"
	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/momentics/hioload-h3/reactor"
	"github.com/rs/zerolog"
)

// dispatchOps holds the interest applied to the OS registration. Only the
// dispatch goroutine, holding its token, may read or change it; snapshot
// exists for dumps.
type dispatchOps struct {
	v atomic.Uint32
}

func (o *dispatchOps) load(*reactor.Dispatch) reactor.Ops { return reactor.Ops(o.v.Load()) }

func (o *dispatchOps) store(_ *reactor.Dispatch, ops reactor.Ops) { o.v.Store(uint32(ops)) }

func (o *dispatchOps) snapshot() reactor.Ops { return reactor.Ops(o.v.Load()) }

type keyRef struct {
	key reactor.Key
}

// Option configures an EndPoint.
type Option func(*EndPoint)

// WithMetrics records endpoint activity on m.
func WithMetrics(m *control.Metrics) Option {
	return func(ep *EndPoint) { ep.metrics = m }
}

// WithClock overrides the idle clock.
func WithClock(now func() time.Time) Option {
	return func(ep *EndPoint) { ep.now = now }
}

// EndPoint serves every peer of one datagram socket.
type EndPoint struct {
	channel Channel
	demux   reactor.Demultiplexer
	log     zerolog.Logger
	metrics *control.Metrics
	now     func() time.Time

	fill    *FillInterest
	flusher *WriteFlusher

	key     atomic.Pointer[keyRef]
	current dispatchOps

	mu            sync.Mutex
	desired       reactor.Ops
	updatePending bool

	closed        atomic.Bool
	inputShutdown atomic.Bool
	lastActive    atomic.Int64

	updateKeyAction          reactor.Update
	runFillable              *endPointTask
	runCompleteWrite         *endPointTask
	runCompleteWriteFillable *endPointTask
}

// NewEndPoint binds channel to its registration key on demux.
func NewEndPoint(channel Channel, demux reactor.Demultiplexer, key reactor.Key, opts ...Option) *EndPoint {
	ep := &EndPoint{
		channel: channel,
		demux:   demux,
		log:     logging.For("datagram").With().Int("fd", channel.Fd()).Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ep)
	}
	ep.key.Store(&keyRef{key: key})
	ep.fill = newFillInterest(ep.NeedsFillInterest)
	ep.flusher = newWriteFlusher(ep)
	ep.updateKeyAction = ep.UpdateKey
	ep.runFillable = &endPointTask{
		ep: ep, op: "runFillable",
		run:        func() { ep.fill.Fillable() },
		invocation: ep.fill.CallbackInvocationType,
	}
	ep.runCompleteWrite = &endPointTask{
		ep: ep, op: "runCompleteWrite",
		run:        ep.flusher.CompleteWrite,
		invocation: ep.flusher.CallbackInvocationType,
	}
	ep.runCompleteWriteFillable = &endPointTask{
		ep: ep, op: "runCompleteWriteFillable",
		run: func() {
			ep.flusher.CompleteWrite()
			ep.fill.Fillable()
		},
		invocation: func() reactor.InvocationType {
			return reactor.Combine(ep.fill.CallbackInvocationType(), ep.flusher.CallbackInvocationType())
		},
	}
	ep.notIdle()
	return ep
}

// FillInterest returns the read-callback holder.
func (ep *EndPoint) FillInterest() *FillInterest { return ep.fill }

// WriteFlusher returns the write driver.
func (ep *EndPoint) WriteFlusher() *WriteFlusher { return ep.flusher }

// FillInterested arms cb to run once a datagram may be filled.
func (ep *EndPoint) FillInterested(cb Callback) error { return ep.fill.Register(cb) }

// Write flushes bufs (address window first) and completes cb once drained.
func (ep *EndPoint) Write(cb Callback, bufs ...[]byte) error { return ep.flusher.Write(cb, bufs...) }

// LocalAddr returns the socket's bound address.
func (ep *EndPoint) LocalAddr() netip.AddrPort { return ep.channel.LocalAddr() }

// IsOpen reports whether Close has not been called.
func (ep *EndPoint) IsOpen() bool { return !ep.closed.Load() }

// ShutdownInput makes subsequent fills report end of stream.
func (ep *EndPoint) ShutdownInput() { ep.inputShutdown.Store(true) }

// IsInputShutdown reports whether ShutdownInput or Close was called.
func (ep *EndPoint) IsInputShutdown() bool { return ep.inputShutdown.Load() || ep.closed.Load() }

// IdleFor returns the time since the last datagram moved in either direction.
func (ep *EndPoint) IdleFor() time.Duration {
	return ep.now().Sub(time.Unix(0, ep.lastActive.Load()))
}

func (ep *EndPoint) notIdle() { ep.lastActive.Store(ep.now().UnixNano()) }

// NeedsFillInterest requests read readiness. Any goroutine.
func (ep *EndPoint) NeedsFillInterest() { ep.changeInterests(reactor.OpRead) }

// OnIncompleteFlush requests write readiness. Any goroutine.
func (ep *EndPoint) OnIncompleteFlush() {
	ep.metrics.IncompleteFlush()
	ep.changeInterests(reactor.OpWrite)
}

func (ep *EndPoint) changeInterests(op reactor.Ops) {
	ep.mu.Lock()
	pending := ep.updatePending
	oldOps := ep.desired
	newOps := oldOps | op
	ep.desired = newOps
	submit := newOps != oldOps && !pending
	if submit {
		ep.updatePending = true
	}
	ep.mu.Unlock()

	ep.log.Debug().Bool("pending", pending).Stringer("from", oldOps).Stringer("to", newOps).Msg("changeInterests")
	ep.metrics.InterestRequested(submit)
	if submit {
		ep.demux.Submit(ep.updateKeyAction)
	}
}

// OnSelected consumes the key's ready ops and returns the task that serves
// them, or nil. Dispatch goroutine only.
func (ep *EndPoint) OnSelected(d *reactor.Dispatch) reactor.Task {
	key := ep.loadKey()
	if key == nil {
		return nil
	}
	ready := key.ReadyOps()

	ep.mu.Lock()
	ep.updatePending = true
	oldOps := ep.desired
	newOps := oldOps &^ ready
	ep.desired = newOps
	ep.mu.Unlock()

	fillable := ready.Has(reactor.OpRead)
	flushable := ready.Has(reactor.OpWrite)
	ep.log.Debug().Stringer("from", oldOps).Stringer("to", newOps).
		Bool("r", fillable).Bool("w", flushable).Msg("onSelected")

	switch {
	case fillable && flushable:
		return ep.runCompleteWriteFillable
	case fillable:
		return ep.runFillable
	case flushable:
		return ep.runCompleteWrite
	default:
		return nil
	}
}

// UpdateKey applies the desired interest to the registration when it
// differs from the applied one. Dispatch goroutine only.
func (ep *EndPoint) UpdateKey(d *reactor.Dispatch) {
	ep.mu.Lock()
	ep.updatePending = false
	newOps := ep.desired
	ep.mu.Unlock()

	oldOps := ep.current.load(d)
	if oldOps == newOps {
		return
	}
	key := ep.loadKey()
	if key == nil {
		return
	}
	if err := key.InterestOps(newOps); err != nil {
		if errors.Is(err, reactor.ErrCancelledKey) {
			ep.log.Debug().Err(err).Msg("ignoring key update for cancelled key")
		} else {
			ep.log.Warn().Err(err).Str("endpoint", ep.String()).Msg("ignoring key update")
		}
		ep.Close(err)
		return
	}
	ep.current.store(d, newOps)
	ep.metrics.KeyUpdated()
	ep.log.Debug().Stringer("from", oldOps).Stringer("to", newOps).Msg("key interests updated")
}

// ReplaceKey swaps the registration after the selector re-registered the
// socket. Interest masks are untouched. Dispatch goroutine only.
func (ep *EndPoint) ReplaceKey(_ *reactor.Dispatch, key reactor.Key) {
	ep.key.Store(&keyRef{key: key})
	if ep.closed.Load() && key != nil {
		key.Cancel()
	}
}

func (ep *EndPoint) loadKey() reactor.Key {
	if ref := ep.key.Load(); ref != nil {
		return ref.key
	}
	return nil
}

// Close cancels the registration, closes the socket, fails pending
// callbacks and notifies the demultiplexer once. Idempotent, any goroutine.
func (ep *EndPoint) Close(cause error) {
	if !ep.closed.CompareAndSwap(false, true) {
		return
	}
	ep.log.Debug().Err(cause).Str("endpoint", ep.String()).Msg("close")
	if key := ep.loadKey(); key != nil {
		key.Cancel()
	}
	if err := ep.channel.Close(); err != nil {
		ep.log.Debug().Err(err).Msg("unable to close channel")
	}
	failure := cause
	if failure == nil {
		failure = api.ErrClosed
	}
	eof := &EOFError{Op: "close", Err: failure}
	ep.fill.OnClose(eof)
	ep.flusher.OnClose(eof)
	ep.demux.DestroyEndPoint(ep, cause)
}

// Fill receives one datagram into buf. The sender's address occupies
// buf[:EncodedLength] and the payload follows it; the payload length is
// returned. It returns (0, nil) with buf untouched when nothing is queued
// and (-1, io.EOF) once input is shut down.
func (ep *EndPoint) Fill(buf []byte) (int, error) {
	if ep.IsInputShutdown() {
		return -1, io.EOF
	}
	if len(buf) <= EncodedLength {
		return 0, fmt.Errorf("datagram: fill: %w", io.ErrShortBuffer)
	}
	n, peer, err := ep.channel.ReceiveFrom(buf[EncodedLength:])
	if err != nil {
		ep.metrics.TransportError("fill")
		return 0, &EOFError{Op: "fill", Err: err}
	}
	if !peer.IsValid() {
		return 0, nil
	}
	ep.notIdle()
	if err := Encode(buf[:EncodedLength], netip.AddrPortFrom(peer.Addr().WithZone(""), peer.Port())); err != nil {
		return 0, err
	}
	ep.metrics.DatagramReceived(n)
	ep.log.Debug().Int("filled", n).Stringer("peer", peer).Msg("fill")
	return n, nil
}

// Flush sends bufs[1:] to the address encoded in bufs[0]. Sent buffers are
// resliced empty in place and the address window is consumed. A send that
// moves no bytes stops the loop. Reports whether every buffer is drained.
// Transport failures are returned as *EOFError.
func (ep *EndPoint) Flush(bufs ...[]byte) (bool, error) {
	if len(bufs) == 0 {
		return true, nil
	}
	peer, err := Decode(bufs[0])
	if err != nil {
		return false, err
	}
	bufs[0] = bufs[0][EncodedLength:]

	flushed := 0
	for i := 1; i < len(bufs); i++ {
		if len(bufs[i]) == 0 {
			continue
		}
		n, err := ep.channel.SendTo(bufs[i], peer)
		if err != nil {
			ep.metrics.TransportError("flush")
			return false, &EOFError{Op: "flush", Err: err}
		}
		if n == 0 {
			break
		}
		ep.metrics.DatagramSent(n)
		flushed += n
		bufs[i] = bufs[i][n:]
	}
	ep.log.Debug().Int("flushed", flushed).Stringer("peer", peer).Msg("flush")
	if flushed > 0 {
		ep.notIdle()
	}
	for _, b := range bufs {
		if len(b) > 0 {
			return false, nil
		}
	}
	return true, nil
}

// String renders {io=applied/desired,kio=key interest,kro=key ready}.
// The applied ops are read without the dispatch token, best effort.
func (ep *EndPoint) String() string {
	ep.mu.Lock()
	desired := ep.desired
	ep.mu.Unlock()
	key := ep.loadKey()
	return fmt.Sprintf("DatagramEndPoint@%p{%v,open=%t,ishut=%t}{io=%s/%s,kio=%s,kro=%s}",
		ep, ep.channel.LocalAddr(), ep.IsOpen(), ep.IsInputShutdown(),
		ep.current.snapshot(), desired,
		reactor.SafeInterestOps(key), reactor.SafeReadyOps(key))
}

// endPointTask is a unit of work handed to an executor. If no executor
// accepts it, the endpoint is closed.
type endPointTask struct {
	ep         *EndPoint
	op         string
	run        func()
	invocation func() reactor.InvocationType
}

func (t *endPointTask) Run() { t.run() }

func (t *endPointTask) InvocationType() reactor.InvocationType { return t.invocation() }

func (t *endPointTask) Close() {
	t.ep.Close(fmt.Errorf("datagram: %s rejected: %w", t.op, api.ErrResourceExhausted))
}

func (t *endPointTask) String() string {
	return fmt.Sprintf("%s:%s:%s", t.ep, t.op, t.InvocationType())
}
