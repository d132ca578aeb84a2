// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrExecutorClosed indicates the executor has been shut down
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrExecutorSaturated indicates the task queue is full
	ErrExecutorSaturated = errors.New("executor queue is full")
)
