// File: server/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"bytes"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-h3/protocol"
)

// Session is the parsing state of one peer address. Frames are parsed in
// arrival order; bytes of a frame split across datagrams are carried over.
type Session struct {
	srv      *Server
	peer     netip.AddrPort
	opened   time.Time
	lastSeen atomic.Int64
	closed   atomic.Bool

	// mu guards buf and parser and is held across listener callbacks.
	mu       sync.Mutex
	buf      bytes.Buffer
	parser   *protocol.Parser
	buffered atomic.Int64
}

func newSession(srv *Server, peer netip.AddrPort) (*Session, error) {
	sess := &Session{srv: srv, peer: peer, opened: srv.now()}
	sess.touch()
	listener, err := srv.openListener(sess)
	if err != nil {
		return nil, err
	}
	if listener == nil {
		listener = protocol.NopListener{}
	}
	sess.parser = protocol.NewParser(0, listener,
		protocol.WithLimits(*srv.limits.Load()),
		protocol.WithMetrics(srv.metrics),
		protocol.WithLogger(srv.log.With().Stringer("peer", peer).Logger()),
	)
	return sess, nil
}

// Peer returns the remote address.
func (s *Session) Peer() netip.AddrPort { return s.peer }

// Send concatenates frames into one datagram to the peer.
func (s *Session) Send(frames ...[]byte) error {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	payload := make([]byte, 0, n)
	for _, f := range frames {
		payload = append(payload, f...)
	}
	return s.srv.Send(s.peer, payload)
}

// Close removes the session; cause reaches Handler.CloseSession.
func (s *Session) Close(cause error) { s.srv.closeSession(s, cause) }

// IsClosed reports whether the session was removed.
func (s *Session) IsClosed() bool { return s.closed.Load() }

// IdleFor returns the time since the last datagram from the peer.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) touch() { s.lastSeen.Store(s.srv.now().UnixNano()) }

func (s *Session) receive(payload []byte) {
	s.touch()
	s.mu.Lock()
	s.buf.Write(payload)
	res := s.parser.Parse(&s.buf)
	s.buffered.Store(int64(s.buf.Len()))
	cause := s.parser.Err()
	s.mu.Unlock()
	if res != protocol.Failed {
		return
	}
	if cause != nil {
		cause = fmt.Errorf("%w: %w", ErrSessionFailed, cause)
	} else {
		cause = ErrSessionFailed
	}
	s.srv.closeSession(s, cause)
}

// String is safe to call from the session's own listener.
func (s *Session) String() string {
	return fmt.Sprintf("Session@%s{buffered=%d,closed=%t}", s.peer, s.buffered.Load(), s.IsClosed())
}
