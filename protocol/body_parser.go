// File: protocol/body_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"

	"github.com/momentics/hioload-h3/control"
	"github.com/rs/zerolog"
)

// Result is the outcome of one Parse call.
type Result int

const (
	// Incomplete means more bytes are needed; everything buffered was consumed.
	Incomplete Result = iota
	// Complete means the frame was parsed and delivered.
	Complete
	// Failed means a failure was notified.
	Failed
)

func (r Result) String() string {
	switch r {
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "incomplete"
	}
}

// BodyParser parses the body of the envelope its HeaderParser last read.
// Parse resumes across calls and consumes at most the declared length.
// Calling Parse again after Complete or Failed for the same envelope is a
// programming error.
type BodyParser interface {
	Parse(buf *bytes.Buffer) Result
	reset()
}

// session is shared by the body parsers of one Parser.
type session struct {
	failed  bool
	failure *Failure
}

// accumulator tracks progress through the current body. It is reset for
// every envelope and reused across frames.
type accumulator struct {
	consumed uint64
	body     []byte
}

func (a *accumulator) reset() {
	a.consumed = 0
	a.body = a.body[:0]
}

// bodyParser holds what every variant shares.
type bodyParser struct {
	header   *HeaderParser
	listener FrameListener
	session  *session
	log      zerolog.Logger
	metrics  *control.Metrics
	acc      accumulator
}

func (b *bodyParser) reset() { b.acc.reset() }

func (b *bodyParser) streamID() uint64 { return b.header.StreamID() }

func (b *bodyParser) bodyLength() uint64 { return b.header.FrameLength() }

func (b *bodyParser) remaining() uint64 { return b.bodyLength() - b.acc.consumed }

// collect appends body bytes to the accumulator and reports whether the
// whole body is buffered.
func (b *bodyParser) collect(buf *bytes.Buffer) bool {
	n := min(uint64(buf.Len()), b.remaining())
	b.acc.body = append(b.acc.body, buf.Next(int(n))...)
	b.acc.consumed += n
	return b.acc.consumed == b.bodyLength()
}

// skip discards body bytes and reports whether the whole body was skipped.
func (b *bodyParser) skip(buf *bytes.Buffer) bool {
	n := min(uint64(buf.Len()), b.remaining())
	buf.Next(int(n))
	b.acc.consumed += n
	return b.acc.consumed == b.bodyLength()
}

// takeBody hands the collected bytes to a frame; the accumulator starts a
// fresh slice for the next body.
func (b *bodyParser) takeBody() []byte {
	body := b.acc.body
	b.acc.body = nil
	if body == nil {
		body = []byte{}
	}
	return body
}

// emptyBody rejects a frame whose declared length contradicts its fixed
// empty shape.
func (b *bodyParser) emptyBody(buf *bytes.Buffer) Result {
	return b.sessionFailure(buf, ErrorGeneralProtocol, "invalid_frame")
}

// sessionFailure discards everything buffered for the connection and
// notifies a session failure.
func (b *bodyParser) sessionFailure(buf *bytes.Buffer, code ErrorCode, reason string) Result {
	buf.Reset()
	b.session.failed = true
	b.session.failure = &Failure{Scope: ScopeSession, Code: code, StreamID: b.streamID(), Reason: reason}
	b.notifySessionFailure(code, reason)
	return Failed
}

// streamFailure notifies a failure local to this stream.
func (b *bodyParser) streamFailure(code ErrorCode, reason string) Result {
	b.notifyStreamFailure(b.streamID(), code, reason)
	return Failed
}

func (b *bodyParser) notifyData(frame *DataFrame) {
	b.notify("data", func() { b.listener.OnData(b.streamID(), frame) })
}

func (b *bodyParser) notifyHeaders(frame *HeadersFrame) {
	b.notify("headers", func() { b.listener.OnHeaders(b.streamID(), frame) })
}

func (b *bodyParser) notifySettings(frame *SettingsFrame) {
	b.notify("settings", func() { b.listener.OnSettings(frame) })
}

func (b *bodyParser) notifyGoAway(frame *GoAwayFrame) {
	b.notify("goaway", func() { b.listener.OnGoAway(frame) })
}

func (b *bodyParser) notifySessionFailure(code ErrorCode, reason string) {
	b.metrics.Failure(ScopeSession.String(), int64(code))
	b.log.Debug().Stringer("code", code).Str("reason", reason).Msg("session failure")
	b.notify("session_failure", func() { b.listener.OnSessionFailure(code, reason) })
}

func (b *bodyParser) notifyStreamFailure(streamID uint64, code ErrorCode, reason string) {
	b.metrics.Failure(ScopeStream.String(), int64(code))
	b.log.Debug().Uint64("stream", streamID).Stringer("code", code).Str("reason", reason).Msg("stream failure")
	b.notify("stream_failure", func() { b.listener.OnStreamFailure(streamID, code, reason) })
}

// notify is the single boundary where listener panics are contained.
func (b *bodyParser) notify(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.ListenerFailure(event)
			b.log.Info().Interface("panic", r).Str("event", event).
				Str("listener", describe(b.listener)).Msg("failure while notifying listener")
		}
	}()
	fn()
}
