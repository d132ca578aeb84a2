// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown is implemented by components that own goroutines or
// OS resources and must release them in order.
type GracefulShutdown interface {
	// Shutdown stops the component and waits for its goroutines until ctx
	// expires.
	Shutdown(ctx context.Context) error
}
