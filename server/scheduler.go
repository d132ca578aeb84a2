// File: server/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Periodic eviction of idle peer sessions.

package server

import (
	"context"
	"time"
)

const minSweepInterval = 10 * time.Millisecond

func (s *Server) startSweeper(ctx context.Context) {
	if s.idleTimeout.Load() <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		interval := time.Duration(s.idleTimeout.Load()) / 2
		if interval < minSweepInterval {
			interval = minSweepInterval
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.EvictIdle(s.now()); n > 0 {
					s.log.Debug().Int("evicted", n).Msg("idle sessions")
				}
			}
		}
	}()
}

// EvictIdle closes sessions idle for at least the idle timeout at now and
// returns how many were closed. A zero timeout disables eviction.
func (s *Server) EvictIdle(now time.Time) int {
	idle := time.Duration(s.idleTimeout.Load())
	if idle <= 0 {
		return 0
	}
	evicted := 0
	for _, sess := range s.snapshotSessions() {
		if sess.IdleFor(now) >= idle {
			s.closeSession(sess, ErrIdleTimeout)
			evicted++
		}
	}
	return evicted
}
