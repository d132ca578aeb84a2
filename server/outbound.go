// File: server/outbound.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The endpoint's write flusher accepts one write at a time; outgoing batches
// wait in a FIFO and are pumped through it one after the other.

package server

import (
	"fmt"

	"github.com/momentics/hioload-h3/api"
	"github.com/momentics/hioload-h3/pool"
	"github.com/momentics/hioload-h3/reactor"
	"github.com/momentics/hioload-h3/transport/datagram"
)

func (s *Server) enqueue(b *pool.Batch) error {
	s.outMu.Lock()
	if s.outq.Length() >= s.cfg.QueueSize {
		s.outMu.Unlock()
		b.Release()
		return fmt.Errorf("server: outbound queue full: %w", api.ErrResourceExhausted)
	}
	s.outq.Add(b)
	s.outMu.Unlock()
	s.pump()
	return nil
}

// pump starts queued writes while the flusher is idle. Completions that run
// synchronously inside Write are picked up by the loop instead of recursing.
func (s *Server) pump() {
	s.outMu.Lock()
	if s.pumping {
		s.outMu.Unlock()
		return
	}
	s.pumping = true
	for !s.writing && s.outq.Length() > 0 {
		b := s.outq.Remove().(*pool.Batch)
		s.writing = true
		s.outMu.Unlock()

		if err := s.write(b); err != nil {
			s.finishWrite(b, err)
		}

		s.outMu.Lock()
	}
	s.pumping = false
	s.outMu.Unlock()
}

func (s *Server) write(b *pool.Batch) error {
	ep := s.endpoint()
	if ep == nil {
		return api.ErrClosed
	}
	cb := datagram.NewCallback(reactor.NonBlocking,
		func() {
			s.finishWrite(b, nil)
			s.pump()
		},
		func(err error) {
			s.finishWrite(b, err)
			s.pump()
		})
	return ep.Write(cb, b.Buffers()...)
}

func (s *Server) finishWrite(b *pool.Batch, err error) {
	s.outMu.Lock()
	s.writing = false
	s.outMu.Unlock()
	if err != nil {
		s.log.Debug().Err(err).Int("bytes", b.Size()).Msg("write failed")
	}
	b.Release()
}

// dropOutbound releases batches that were never written.
func (s *Server) dropOutbound() {
	s.outMu.Lock()
	var dropped []*pool.Batch
	for s.outq.Length() > 0 {
		dropped = append(dropped, s.outq.Remove().(*pool.Batch))
	}
	s.outMu.Unlock()
	for _, b := range dropped {
		b.Release()
	}
}

// Outbound returns the number of queued, unwritten batches.
func (s *Server) Outbound() int {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.outq.Length()
}
