// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "context"

// Run starts the server, blocks until ctx is done, then shuts down within
// the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.Shutdown(sctx)
}
