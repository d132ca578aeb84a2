// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness demultiplexer used by datagram endpoints.
//
// A Selector owns one poll instance (epoll on Linux) and one dispatch goroutine.
// Only the dispatch goroutine mutates OS registrations; every other goroutine
// communicates with it through Submit, which is a non-blocking handoff into the
// selector's update queue. Selectables receive a *Dispatch token on every
// dispatch-side callback so dispatch-confined state cannot be reached without it.
package reactor
