// File: transport/datagram/write_flusher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-h3/reactor"
)

type flushTarget interface {
	Flush(bufs ...[]byte) (bool, error)
	OnIncompleteFlush()
}

type writeState int

const (
	writeIdle writeState = iota
	writeWriting
	writePending
	writeCompleting
	writeFailed
)

func (s writeState) String() string {
	switch s {
	case writeWriting:
		return "WRITING"
	case writePending:
		return "PENDING"
	case writeCompleting:
		return "COMPLETING"
	case writeFailed:
		return "FAILED"
	default:
		return "IDLE"
	}
}

// WriteFlusher drives one write at a time through Flush. A write that cannot
// complete keeps its remaining buffers, asks for write interest and resumes
// from CompleteWrite. The destination address window is retained across
// retries.
type WriteFlusher struct {
	target flushTarget

	mu      sync.Mutex
	state   writeState
	cb      Callback
	addr    [EncodedLength]byte
	pending [][]byte
	failure error
}

func newWriteFlusher(target flushTarget) *WriteFlusher {
	return &WriteFlusher{target: target}
}

// Write flushes bufs, where bufs[0] is an encoded destination address.
// cb completes when every buffer has been sent. Returns ErrWritePending
// while a previous write is outstanding; other failures go to cb.
func (w *WriteFlusher) Write(cb Callback, bufs ...[]byte) error {
	if cb == nil {
		return fmt.Errorf("datagram: write: nil callback")
	}
	if len(bufs) == 0 || len(bufs[0]) < EncodedLength {
		return fmt.Errorf("datagram: write: %w", ErrMalformedAddress)
	}
	w.mu.Lock()
	switch w.state {
	case writeIdle:
	case writeFailed:
		err := w.failure
		w.mu.Unlock()
		cb.Failed(err)
		return nil
	default:
		w.mu.Unlock()
		return ErrWritePending
	}
	w.state = writeWriting
	w.cb = cb
	copy(w.addr[:], bufs[0][:EncodedLength])
	w.mu.Unlock()

	w.flush(bufs)
	return nil
}

// CompleteWrite resumes a pending write once the endpoint is writable.
func (w *WriteFlusher) CompleteWrite() {
	w.mu.Lock()
	if w.state != writePending {
		w.mu.Unlock()
		return
	}
	w.state = writeCompleting
	bufs := make([][]byte, 0, len(w.pending)+1)
	bufs = append(bufs, w.addr[:])
	bufs = append(bufs, w.pending...)
	w.pending = nil
	w.mu.Unlock()

	w.flush(bufs)
}

func (w *WriteFlusher) flush(bufs [][]byte) {
	done, err := w.target.Flush(bufs...)
	if err != nil {
		w.fail(err)
		return
	}
	w.mu.Lock()
	if w.state == writeFailed {
		// closed while flushing; OnFail already completed the callback
		w.mu.Unlock()
		return
	}
	if done {
		cb := w.cb
		w.cb = nil
		w.state = writeIdle
		w.mu.Unlock()
		cb.Succeeded()
		return
	}
	w.pending = remaining(bufs[1:])
	w.state = writePending
	w.mu.Unlock()
	w.target.OnIncompleteFlush()
}

func (w *WriteFlusher) fail(err error) {
	w.mu.Lock()
	if w.state == writeFailed {
		w.mu.Unlock()
		return
	}
	cb := w.cb
	w.cb = nil
	w.pending = nil
	w.failure = err
	w.state = writeFailed
	w.mu.Unlock()
	if cb != nil {
		cb.Failed(err)
	}
}

// OnFail fails an outstanding write and rejects later ones with err.
func (w *WriteFlusher) OnFail(err error) { w.fail(err) }

// OnClose fails an outstanding write with cause.
func (w *WriteFlusher) OnClose(cause error) { w.fail(cause) }

// IsPending reports whether a write waits for write interest.
func (w *WriteFlusher) IsPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == writePending
}

// CallbackInvocationType classifies the outstanding write's callback.
func (w *WriteFlusher) CallbackInvocationType() reactor.InvocationType {
	w.mu.Lock()
	defer w.mu.Unlock()
	return invocationOf(w.cb)
}

func (w *WriteFlusher) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fmt.Sprintf("WriteFlusher@%p{%s,%d}", w, w.state, len(w.pending))
}

func remaining(bufs [][]byte) [][]byte {
	out := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}
