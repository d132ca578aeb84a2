// File: internal/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across a fixed set of worker goroutines fed by a
// bounded queue. Submit never blocks: a full queue rejects the task so the
// dispatch goroutine can close the owning endpoint instead of stalling.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/rs/zerolog"
)

// Executor manages a pool of worker goroutines.
type Executor struct {
	name    string
	log     zerolog.Logger
	queue   chan func()
	closeCh chan struct{}
	// mu orders Submit against Close so no task lands after the drain.
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	workers int

	// statistics
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
}

// NewExecutor starts numWorkers workers sharing a queue of queueSize slots.
// numWorkers <= 0 defaults to runtime.NumCPU().
func NewExecutor(name string, numWorkers, queueSize int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 64
	}
	e := &Executor{
		name:    name,
		log:     logging.For("executor").With().Str("pool", name).Logger(),
		queue:   make(chan func(), queueSize),
		closeCh: make(chan struct{}),
		workers: numWorkers,
	}
	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.run(i)
	}
	return e
}

// Submit enqueues a task. Returns ErrExecutorClosed after Close and
// ErrExecutorSaturated when the queue is full.
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.rejected.Add(1)
		return ErrExecutorClosed
	}
	select {
	case e.queue <- task:
		e.submitted.Add(1)
		return nil
	default:
		e.rejected.Add(1)
		return ErrExecutorSaturated
	}
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return e.workers
}

// Close stops accepting tasks, runs what is already queued and waits for the workers.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.closeCh)
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	return map[string]int64{
		"submitted_tasks": e.submitted.Load(),
		"completed_tasks": e.completed.Load(),
		"panicked_tasks":  e.panicked.Load(),
		"rejected_tasks":  e.rejected.Load(),
		"pending_tasks":   int64(len(e.queue)),
		"num_workers":     int64(e.workers),
	}
}

func (e *Executor) run(id int) {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.queue:
			e.safeExecute(id, task)
		case <-e.closeCh:
			for {
				select {
				case task := <-e.queue:
					e.safeExecute(id, task)
				default:
					return
				}
			}
		}
	}
}

// safeExecute runs the task, keeping the worker alive on panics.
func (e *Executor) safeExecute(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
			e.log.Warn().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
		e.completed.Add(1)
	}()
	task()
}
