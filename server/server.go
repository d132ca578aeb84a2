// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server binds one UDP socket, drives it through a reactor selector and the
// datagram endpoint, and runs one frame parser per peer address.

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-h3/api"
	"github.com/momentics/hioload-h3/control"
	"github.com/momentics/hioload-h3/internal/concurrency"
	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/momentics/hioload-h3/pool"
	"github.com/momentics/hioload-h3/protocol"
	"github.com/momentics/hioload-h3/reactor"
	"github.com/momentics/hioload-h3/transport/datagram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 5 * time.Second

// Server is a datagram frame server.
type Server struct {
	cfg             control.Config
	handler         Handler
	log             zerolog.Logger
	registry        *prometheus.Registry
	metrics         *control.Metrics
	probes          *control.DebugProbes
	bufs            *pool.BytePool
	now             func() time.Time
	shutdownTimeout time.Duration

	limits      atomic.Pointer[protocol.Limits]
	idleTimeout atomic.Int64

	started  atomic.Bool
	stopOnce sync.Once
	ep       atomic.Pointer[datagram.EndPoint]
	sel      *reactor.Selector
	blocking *concurrency.Executor
	fast     *concurrency.Executor
	cancel   context.CancelFunc
	admin    *http.Server
	wg       sync.WaitGroup
	readCB   datagram.Callback

	mu       sync.Mutex
	sessions map[netip.AddrPort]*Session

	outMu   sync.Mutex
	outq    *queue.Queue
	writing bool
	pumping bool
}

// NewServer builds a Server for cfg. Nothing is bound until Start.
func NewServer(cfg control.Config, handler Handler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "nil handler")
	}
	s := &Server{
		cfg:             cfg,
		handler:         handler,
		log:             logging.For("server"),
		now:             time.Now,
		shutdownTimeout: defaultShutdownTimeout,
		sessions:        make(map[netip.AddrPort]*Session),
		outq:            queue.New(),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if s.probes == nil {
		s.probes = control.NewDebugProbes()
	}
	s.metrics = control.NewMetrics(control.MetricsConfig{Registry: s.registry})
	s.bufs = pool.NewBytePool(s.cfg.ReceiveBuffer)
	s.Reload(s.cfg)
	s.readCB = datagram.NewCallback(reactor.Blocking, s.readable, s.readFailed)
	return s, nil
}

// Reload applies the reloadable parts of cfg: frame limits for new
// sessions and the idle timeout.
func (s *Server) Reload(cfg control.Config) {
	limits := protocol.LimitsFromConfig(cfg.Limits)
	s.limits.Store(&limits)
	s.idleTimeout.Store(int64(cfg.IdleTimeout.Duration))
	s.log.Debug().Dur("idle", cfg.IdleTimeout.Duration).
		Uint64("max_data", limits.MaxDataBody).Msg("configuration applied")
}

// Start binds the configured address and starts serving.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ch, err := datagram.ListenUDP(s.cfg.Listen, s.cfg.ReceiveBuffer)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("server: listen: %w", err)
	}
	if err := s.serve(ctx, ch); err != nil {
		s.started.Store(false)
		return err
	}
	return nil
}

func (s *Server) serve(ctx context.Context, ch datagram.Channel) error {
	s.blocking = concurrency.NewExecutor("blocking", s.cfg.Workers, s.cfg.QueueSize)
	s.fast = concurrency.NewExecutor("non-blocking", 2, s.cfg.QueueSize)
	sel, err := reactor.NewSelector(reactor.Config{
		Name:        "h3",
		MaxEvents:   s.cfg.SelectBatch,
		Executor:    s.blocking,
		NonBlocking: s.fast,
		Metrics:     s.metrics,
		PinCPU:      s.cfg.SelectorCPU >= 0,
		CPU:         s.cfg.SelectorCPU,
	})
	if err != nil {
		_ = ch.Close()
		s.blocking.Close()
		s.fast.Close()
		return err
	}
	s.sel = sel
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sel.Run(runCtx); err != nil {
			s.log.Error().Err(err).Msg("selector stopped")
		}
	}()

	_, err = sel.Register(ctx, ch.Fd(), 0, func(k reactor.Key) (reactor.Selectable, error) {
		ep := datagram.NewEndPoint(ch, sel, k,
			datagram.WithMetrics(s.metrics), datagram.WithClock(s.now))
		s.ep.Store(ep)
		return ep, nil
	})
	if err != nil {
		cancel()
		s.wg.Wait()
		_ = ch.Close()
		s.blocking.Close()
		s.fast.Close()
		return fmt.Errorf("server: register: %w", err)
	}

	s.registerProbes(ch)
	s.startSweeper(runCtx)
	if err := s.startAdmin(); err != nil {
		s.log.Warn().Err(err).Str("addr", s.cfg.MetricsAddr).Msg("admin listener disabled")
	}
	s.armFill()
	s.log.Info().Stringer("addr", ch.LocalAddr()).Int("workers", s.blocking.NumWorkers()).Msg("serving")
	return nil
}

func (s *Server) endpoint() *datagram.EndPoint { return s.ep.Load() }

// LocalAddr returns the bound address, or the zero value before Start.
func (s *Server) LocalAddr() netip.AddrPort {
	if ep := s.endpoint(); ep != nil {
		return ep.LocalAddr()
	}
	return netip.AddrPort{}
}

// Registry returns the registry holding the server's collectors.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Probes returns the debug probe registry.
func (s *Server) Probes() *control.DebugProbes { return s.probes }

func (s *Server) armFill() {
	ep := s.endpoint()
	if ep == nil || ep.IsInputShutdown() {
		return
	}
	if err := ep.FillInterested(s.readCB); err != nil && !errors.Is(err, datagram.ErrReadPending) {
		s.log.Warn().Err(err).Msg("fill interest")
	}
}

// readable drains up to one batch of datagrams, then re-arms read interest.
func (s *Server) readable() {
	ep := s.endpoint()
	buf := s.bufs.GetBuffer()
	defer s.bufs.PutBuffer(buf)
	defer s.armFill()
	for i := 0; i < s.cfg.SelectBatch; i++ {
		n, err := ep.Fill(buf)
		if err != nil {
			if !ep.IsInputShutdown() {
				s.log.Warn().Err(err).Msg("receive failed, closing endpoint")
				ep.Close(err)
			}
			return
		}
		if n == 0 {
			break
		}
		peer, err := datagram.Decode(buf[:datagram.EncodedLength])
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping datagram")
			continue
		}
		s.deliver(peer, buf[datagram.EncodedLength:datagram.EncodedLength+n])
	}
}

func (s *Server) readFailed(err error) {
	s.log.Debug().Err(err).Msg("read interest failed")
}

func (s *Server) deliver(peer netip.AddrPort, payload []byte) {
	sess := s.session(peer)
	if sess == nil {
		return
	}
	sess.receive(payload)
}

// session returns the live session for peer, opening one when needed.
func (s *Server) session(peer netip.AddrPort) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[peer]
	s.mu.Unlock()
	if ok {
		return sess
	}
	sess, err := newSession(s, peer)
	if err != nil {
		s.log.Warn().Err(err).Stringer("peer", peer).Msg("session rejected")
		return nil
	}
	s.mu.Lock()
	if cur, ok := s.sessions[peer]; ok {
		s.mu.Unlock()
		return cur
	}
	s.sessions[peer] = sess
	s.mu.Unlock()
	s.log.Debug().Stringer("peer", peer).Msg("session opened")
	return sess
}

func (s *Server) closeSession(sess *Session, cause error) {
	s.mu.Lock()
	if cur, ok := s.sessions[sess.peer]; ok && cur == sess {
		delete(s.sessions, sess.peer)
	}
	s.mu.Unlock()
	if !sess.closed.CompareAndSwap(false, true) {
		return
	}
	s.log.Debug().Err(cause).Stringer("peer", sess.peer).Msg("session closed")
	s.notifyClose(sess, cause)
}

// openListener and notifyClose contain handler panics so one faulty session
// can not stop the read loop.
func (s *Server) openListener(sess *Session) (l protocol.FrameListener, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ListenerFailure("open_session")
			err = fmt.Errorf("server: open session %s: panic: %v", sess.peer, r)
		}
	}()
	return s.handler.OpenSession(sess), nil
}

func (s *Server) notifyClose(sess *Session, cause error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ListenerFailure("close_session")
			s.log.Warn().Interface("panic", r).Stringer("peer", sess.peer).Msg("close session handler panicked")
		}
	}()
	s.handler.CloseSession(sess, cause)
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) snapshotSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Send queues each payload as one datagram to peer.
func (s *Server) Send(peer netip.AddrPort, payloads ...[]byte) error {
	ep := s.endpoint()
	if ep == nil || !ep.IsOpen() {
		return api.ErrClosed
	}
	addr, err := datagram.AppendAddress(make([]byte, 0, datagram.EncodedLength), peer)
	if err != nil {
		return err
	}
	b := pool.NewBatch(s.bufs, len(payloads)+1)
	b.Append(addr)
	for _, p := range payloads {
		if len(p) > s.bufs.Size() {
			b.Release()
			return fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(p))
		}
		idx := b.Acquire()
		b.Set(idx, append(b.Get(idx), p...))
	}
	return s.enqueue(b)
}

// Shutdown stops reading, closes every session and waits for the selector
// and the executors, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotRunning
	}
	var err error
	s.stopOnce.Do(func() { err = s.shutdown(ctx) })
	return err
}

func (s *Server) shutdown(ctx context.Context) error {
	var errs []error
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin: %w", err))
		}
	}
	if ep := s.endpoint(); ep != nil {
		ep.ShutdownInput()
		ep.Close(api.ErrClosed)
	}
	for _, sess := range s.snapshotSessions() {
		s.closeSession(sess, api.ErrClosed)
	}
	s.dropOutbound()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.blocking.Close()
		s.fast.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	s.unregisterProbes()
	s.log.Info().Msg("stopped")
	return errors.Join(errs...)
}

var _ api.GracefulShutdown = (*Server)(nil)
