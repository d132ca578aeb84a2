// File: reactor/selector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Selector is a single-goroutine readiness loop. Producers hand updates to it
// through an unbounded queue; the loop drains the queue, polls, converts ready
// descriptors into tasks via Selectable.OnSelected and hands those tasks to an
// executor. The loop itself never runs application fill/flush logic.

package reactor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-h3/control"
	"github.com/momentics/hioload-h3/internal/concurrency"
	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrSelectorClosed is returned by operations on a stopped selector.
	ErrSelectorClosed = errors.New("reactor: selector closed")
	errInterrupted    = errors.New("reactor: poll interrupted")
)

// readyEvent is one readiness notification produced by a poller.
type readyEvent struct {
	fd  int
	ops Ops
	err bool
}

// poller is the platform readiness backend. Every method except wake is
// called from the dispatch goroutine only.
type poller interface {
	add(fd int, ops Ops) error
	mod(fd int, ops Ops) error
	del(fd int) error
	wait(events []readyEvent, timeoutMs int) (int, error)
	clearError(fd int)
	wake() error
	close() error
}

// Config parameterizes a Selector.
type Config struct {
	Name      string
	MaxEvents int
	// Executor runs blocking tasks. Required.
	Executor Executor
	// NonBlocking runs NonBlocking and Either tasks; Executor when nil.
	NonBlocking Executor
	Metrics     *control.Metrics
	// PinCPU binds the dispatch thread to CPU while Run executes.
	PinCPU bool
	CPU    int
	// OnDestroy is invoked on the dispatch goroutine for every destroyed endpoint.
	OnDestroy func(s Selectable, cause error)
}

// Selector owns a poll instance and the dispatch goroutine driving it.
type Selector struct {
	name        string
	log         zerolog.Logger
	executor    Executor
	nonBlocking Executor
	metrics     *control.Metrics
	onDestroy   func(Selectable, error)
	newPoller   func() (poller, error)
	cpu         int

	mu        sync.Mutex
	poller    poller
	updates   *queue.Queue
	selecting bool
	stopped   bool

	// dispatch goroutine only
	dispatch   *Dispatch
	keys       map[int]*selectionKey
	events     []readyEvent
	selected   []*selectionKey
	generation uint64
	running    atomic.Bool
	done       chan struct{}
}

// NewSelector creates a selector backed by the platform poller.
func NewSelector(cfg Config) (*Selector, error) {
	return newSelector(cfg, newPlatformPoller)
}

func newSelector(cfg Config, factory func() (poller, error)) (*Selector, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("reactor: selector %q requires an executor", cfg.Name)
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 128
	}
	if cfg.Name == "" {
		cfg.Name = "selector"
	}
	p, err := factory()
	if err != nil {
		return nil, err
	}
	nb := cfg.NonBlocking
	if nb == nil {
		nb = cfg.Executor
	}
	s := &Selector{
		name:        cfg.Name,
		log:         logging.For("reactor").With().Str("selector", cfg.Name).Logger(),
		executor:    cfg.Executor,
		nonBlocking: nb,
		metrics:     cfg.Metrics,
		onDestroy:   cfg.OnDestroy,
		newPoller:   factory,
		cpu:         -1,
		poller:      p,
		updates:     queue.New(),
		keys:        make(map[int]*selectionKey),
		events:      make([]readyEvent, cfg.MaxEvents),
		done:        make(chan struct{}),
	}
	if cfg.PinCPU {
		s.cpu = cfg.CPU
	}
	s.dispatch = NewDispatch(s)
	return s, nil
}

// Submit queues u for the dispatch goroutine. It never blocks on I/O and
// wakes the poll only when the loop is currently waiting.
func (s *Selector) Submit(u Update) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.log.Debug().Msg("update dropped, selector stopped")
		return
	}
	s.updates.Add(u)
	wake := s.selecting
	s.selecting = false
	p := s.poller
	s.mu.Unlock()

	if wake {
		if err := p.wake(); err != nil {
			s.log.Warn().Err(err).Msg("wakeup failed")
		}
	}
}

// Register adds fd with the initial ops and attaches the Selectable built by
// attach. It waits for the dispatch goroutine to perform the registration.
func (s *Selector) Register(ctx context.Context, fd int, ops Ops, attach func(Key) (Selectable, error)) (Key, error) {
	type result struct {
		key Key
		err error
	}
	ch := make(chan result, 1)
	s.Submit(func(*Dispatch) {
		key, err := s.register(fd, ops, attach)
		ch <- result{key, err}
	})
	select {
	case r := <-ch:
		return r.key, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSelectorClosed
	}
}

func (s *Selector) register(fd int, ops Ops, attach func(Key) (Selectable, error)) (Key, error) {
	if _, dup := s.keys[fd]; dup {
		return nil, fmt.Errorf("reactor: fd %d already registered", fd)
	}
	s.generation++
	k := &selectionKey{fd: fd, selector: s, generation: s.generation}
	if err := s.poller.add(fd, ops); err != nil {
		return nil, fmt.Errorf("reactor: register fd=%d: %w", fd, err)
	}
	k.interest.Store(uint32(ops))
	sel, err := attach(k)
	if err != nil {
		_ = s.poller.del(fd)
		return nil, err
	}
	k.attachment = sel
	s.keys[fd] = k
	s.metrics.EndPointOpened()
	s.log.Debug().Int("fd", fd).Str("ops", ops.String()).Msg("registered")
	return k, nil
}

func (s *Selector) deregister(k *selectionKey) {
	cur, ok := s.keys[k.fd]
	if !ok || cur != k {
		return
	}
	delete(s.keys, k.fd)
	if err := s.poller.del(k.fd); err != nil {
		s.log.Debug().Err(err).Int("fd", k.fd).Msg("deregister")
	}
}

// DestroyEndPoint performs bookkeeping for a closed endpoint on the dispatch goroutine.
func (s *Selector) DestroyEndPoint(sel Selectable, cause error) {
	s.Submit(func(*Dispatch) {
		s.metrics.EndPointClosed()
		s.log.Debug().Err(cause).Str("endpoint", fmt.Sprint(sel)).Msg("destroyed")
		if s.onDestroy != nil {
			s.onDestroy(sel, cause)
		}
	})
}

// Rebuild replaces the poll instance and re-registers every valid key,
// handing the new keys to their Selectables through ReplaceKey.
func (s *Selector) Rebuild() {
	s.Submit(func(d *Dispatch) {
		if err := s.rebuild(d); err != nil {
			s.log.Warn().Err(err).Msg("rebuild failed")
		}
	})
}

func (s *Selector) rebuild(d *Dispatch) error {
	np, err := s.newPoller()
	if err != nil {
		return err
	}
	old := s.keys
	s.keys = make(map[int]*selectionKey, len(old))
	for fd, k := range old {
		if !k.IsValid() {
			continue
		}
		s.generation++
		nk := &selectionKey{fd: fd, selector: s, generation: s.generation, attachment: k.attachment}
		ops := k.Interest()
		if err := np.add(fd, ops); err != nil {
			s.log.Warn().Err(err).Int("fd", fd).Msg("re-register failed")
			k.cancelled.Store(true)
			continue
		}
		nk.interest.Store(uint32(ops))
		k.cancelled.Store(true)
		s.keys[fd] = nk
		nk.attachment.ReplaceKey(d, nk)
	}
	s.mu.Lock()
	prev := s.poller
	s.poller = np
	s.mu.Unlock()
	return prev.close()
}

// Run drives the dispatch loop until ctx is done or Stop is called.
// The calling goroutine is locked to its OS thread for the loop's lifetime.
func (s *Selector) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("reactor: selector %q already running", s.name)
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)
	if s.cpu >= 0 {
		restore, err := concurrency.PinCurrentThread(s.cpu)
		if err != nil {
			s.log.Warn().Err(err).Int("cpu", s.cpu).Msg("dispatch thread not pinned")
		} else {
			defer func() { _ = restore() }()
		}
	}

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	s.log.Debug().Msg("started")
	for {
		if !s.runUpdates() {
			return s.shutdown(ctx.Err())
		}
		if !s.beginSelect() {
			continue
		}
		n, err := s.poller.wait(s.events, -1)
		s.endSelect()
		if err != nil {
			if errors.Is(err, errInterrupted) {
				continue
			}
			return s.shutdown(fmt.Errorf("reactor: poll: %w", err))
		}
		s.processSelected(n)
	}
}

// Stop asks the dispatch loop to exit; pending tasks already handed to
// executors are unaffected.
func (s *Selector) Stop() {
	s.Submit(func(*Dispatch) {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	})
}

// Done is closed once Run returned.
func (s *Selector) Done() <-chan struct{} { return s.done }

// runUpdates drains the update queue; it returns false once stopped.
func (s *Selector) runUpdates() bool {
	for {
		s.mu.Lock()
		if s.updates.Length() == 0 {
			stopped := s.stopped
			s.mu.Unlock()
			return !stopped
		}
		u := s.updates.Remove().(Update)
		s.mu.Unlock()
		s.safeUpdate(u)
	}
}

func (s *Selector) safeUpdate(u Update) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Interface("panic", r).Msg("update failed")
		}
	}()
	u(s.dispatch)
}

// beginSelect marks the loop as waiting unless updates raced in.
func (s *Selector) beginSelect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates.Length() > 0 || s.stopped {
		return false
	}
	s.selecting = true
	return true
}

func (s *Selector) endSelect() {
	s.mu.Lock()
	s.selecting = false
	s.mu.Unlock()
}

func (s *Selector) processSelected(n int) {
	s.selected = s.selected[:0]
	for i := 0; i < n; i++ {
		ev := s.events[i]
		k, ok := s.keys[ev.fd]
		if !ok || !k.IsValid() {
			continue
		}
		ready := ev.ops & k.Interest()
		if ev.err {
			// Surface socket errors through the registered interest so
			// fill/flush observe them; clear when nothing listens.
			ready |= k.Interest()
			if ready == 0 {
				s.poller.clearError(ev.fd)
				continue
			}
		}
		if ready == 0 {
			continue
		}
		k.ready.Store(uint32(ready))
		s.metrics.Selected()
		task := k.attachment.OnSelected(s.dispatch)
		if task != nil {
			s.execute(task)
		}
		s.selected = append(s.selected, k)
	}
	for _, k := range s.selected {
		if k.IsValid() {
			k.attachment.UpdateKey(s.dispatch)
		}
	}
}

func (s *Selector) execute(task Task) {
	exec := s.executor
	if task.InvocationType() != Blocking {
		exec = s.nonBlocking
	}
	if err := exec.Submit(task.Run); err != nil {
		s.log.Warn().Err(err).Str("task", fmt.Sprint(task)).Msg("task rejected")
		if c, ok := task.(Closeable); ok {
			c.Close()
		}
	}
}

func (s *Selector) shutdown(cause error) error {
	s.mu.Lock()
	s.stopped = true
	p := s.poller
	s.mu.Unlock()
	for fd, k := range s.keys {
		k.cancelled.Store(true)
		delete(s.keys, fd)
	}
	if err := p.close(); err != nil {
		s.log.Debug().Err(err).Msg("poller close")
	}
	s.log.Debug().Err(cause).Msg("stopped")
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}

// Len returns the number of registered keys; dispatch goroutine or after Run returned.
func (s *Selector) Len() int { return len(s.keys) }

func (s *Selector) String() string { return fmt.Sprintf("Selector@%s", s.name) }
