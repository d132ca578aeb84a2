// File: reactor/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Work units produced by Selectable.OnSelected and their blocking classification.

package reactor

// InvocationType tells the selector which pool may run a task.
type InvocationType int

const (
	// Blocking tasks may block the running goroutine.
	Blocking InvocationType = iota
	// NonBlocking tasks never block.
	NonBlocking
	// Either tasks adapt to the goroutine they run on.
	Either
)

func (t InvocationType) String() string {
	switch t {
	case NonBlocking:
		return "NON_BLOCKING"
	case Either:
		return "EITHER"
	default:
		return "BLOCKING"
	}
}

// Combine classifies a task that runs two sub-operations back to back.
// Equal types keep their type, Either mixed with NonBlocking is Either,
// any other disagreement is Blocking.
func Combine(a, b InvocationType) InvocationType {
	if a == b {
		return a
	}
	if (a == Either && b == NonBlocking) || (a == NonBlocking && b == Either) {
		return Either
	}
	return Blocking
}

// Task is a unit of work handed from the dispatch goroutine to an executor.
type Task interface {
	Run()
	InvocationType() InvocationType
}

// Closeable tasks are closed when no executor accepts them.
type Closeable interface {
	Task
	Close()
}
