// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-h3/control"
	"github.com/prometheus/client_golang/prometheus"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithBatchSize overrides how many datagrams one read pass drains.
func WithBatchSize(batch int) ServerOption {
	return func(s *Server) {
		s.cfg.SelectBatch = batch
	}
}

// WithExecutorWorkers sets the number of blocking worker goroutines.
func WithExecutorWorkers(n int) ServerOption {
	return func(s *Server) {
		s.cfg.Workers = n
	}
}

// WithRegistry registers the server's collectors on reg instead of a
// private registry.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithProbes publishes debug state on probes.
func WithProbes(probes *control.DebugProbes) ServerOption {
	return func(s *Server) {
		s.probes = probes
	}
}

// WithClock overrides the clock used for idle tracking.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// WithShutdownTimeout bounds the shutdown performed by Run.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}
