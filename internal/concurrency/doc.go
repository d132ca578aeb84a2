// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker pools that run the fill/flush work units produced by the reactor.
// Tasks never run on the dispatch goroutine; a panicking task is logged and
// the worker keeps serving.
package concurrency
