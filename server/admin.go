// File: server/admin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Admin HTTP surface: Prometheus metrics, debug state and a health check.

package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/momentics/hioload-h3/transport/datagram"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandler returns the admin router.
func (s *Server) AdminHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/debug/state", s.serveDebugState)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		ep := s.endpoint()
		if ep == nil || !ep.IsOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("closed"))
			return
		}
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

func (s *Server) serveDebugState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.probes.DumpState()); err != nil {
		s.log.Debug().Err(err).Msg("debug state")
	}
}

func (s *Server) startAdmin() error {
	if s.cfg.MetricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.MetricsAddr)
	if err != nil {
		return err
	}
	s.admin = &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn().Err(err).Msg("admin server")
		}
	}()
	s.log.Info().Stringer("addr", ln.Addr()).Msg("admin listening")
	return nil
}

const (
	probeEndPoint    = "endpoint"
	probeSessions    = "sessions"
	probeOutbound    = "outbound"
	probeBuffers     = "buffers"
	probeBlocking    = "executor.blocking"
	probeNonBlocking = "executor.non_blocking"
	probeTruncated   = "datagrams.truncated"
)

func (s *Server) registerProbes(ch datagram.Channel) {
	s.probes.RegisterProbe(probeEndPoint, func() any {
		if ep := s.endpoint(); ep != nil {
			return ep.String()
		}
		return nil
	})
	s.probes.RegisterProbe(probeSessions, func() any { return s.Sessions() })
	s.probes.RegisterProbe(probeOutbound, func() any { return s.Outbound() })
	s.probes.RegisterProbe(probeBuffers, func() any { return s.bufs.Stats() })
	s.probes.RegisterProbe(probeBlocking, func() any { return s.blocking.Stats() })
	s.probes.RegisterProbe(probeNonBlocking, func() any { return s.fast.Stats() })
	if tc, ok := ch.(interface{ Truncated() uint64 }); ok {
		s.probes.RegisterProbe(probeTruncated, func() any { return tc.Truncated() })
	}
}

func (s *Server) unregisterProbes() {
	for _, name := range []string{probeEndPoint, probeSessions, probeOutbound, probeBuffers, probeBlocking, probeNonBlocking, probeTruncated} {
		s.probes.UnregisterProbe(name)
	}
}
