// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-h3/api"
	"github.com/momentics/hioload-h3/protocol"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
	// ErrSessionFailed closes a session whose parser hit a session failure.
	// The close cause also wraps the parser's *protocol.Failure.
	ErrSessionFailed = errors.New("server: session failed")
	// ErrIdleTimeout closes a session that received nothing for the idle timeout.
	ErrIdleTimeout = fmt.Errorf("server: session idle: %w", api.ErrOperationTimeout)
	// ErrDatagramTooLarge rejects payloads larger than a pooled buffer.
	ErrDatagramTooLarge = errors.New("server: datagram too large")
)

// Handler builds the frame listener of each new peer session and is told
// when the session ends.
type Handler interface {
	// OpenSession is called once per session before its first frame is parsed.
	OpenSession(s *Session) protocol.FrameListener
	// CloseSession is called once after the session was removed.
	CloseSession(s *Session, cause error)
}

// HandlerFunc adapts a listener factory to Handler. Close notifications are dropped.
type HandlerFunc func(s *Session) protocol.FrameListener

func (f HandlerFunc) OpenSession(s *Session) protocol.FrameListener { return f(s) }

func (f HandlerFunc) CloseSession(*Session, error) {}
