// File: protocol/header_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"

	"github.com/quic-go/quic-go/quicvarint"
)

type headerState int

const (
	headerType headerState = iota
	headerLength
	headerDone
)

// HeaderParser reads the frame envelope of one stream incrementally. A
// variable-length integer is consumed only once all of its bytes are
// buffered.
type HeaderParser struct {
	streamID    uint64
	state       headerState
	frameType   FrameType
	frameLength uint64
}

// NewHeaderParser creates a header parser for streamID.
func NewHeaderParser(streamID uint64) *HeaderParser {
	return &HeaderParser{streamID: streamID}
}

// Parse reads as much of the envelope as buf holds. It reports whether the
// envelope is complete.
func (h *HeaderParser) Parse(buf *bytes.Buffer) bool {
	for {
		switch h.state {
		case headerType:
			v, ok := readVarint(buf)
			if !ok {
				return false
			}
			h.frameType = FrameType(v)
			h.state = headerLength
		case headerLength:
			v, ok := readVarint(buf)
			if !ok {
				return false
			}
			h.frameLength = v
			h.state = headerDone
		default:
			return true
		}
	}
}

// Reset prepares for the next envelope.
func (h *HeaderParser) Reset() {
	h.state = headerType
	h.frameType = 0
	h.frameLength = 0
}

// FrameType returns the type of the current envelope.
func (h *HeaderParser) FrameType() FrameType { return h.frameType }

// FrameLength returns the declared body length of the current envelope.
func (h *HeaderParser) FrameLength() uint64 { return h.frameLength }

// StreamID returns the stream this parser is bound to.
func (h *HeaderParser) StreamID() uint64 { return h.streamID }

// Envelope returns the current envelope.
func (h *HeaderParser) Envelope() Envelope {
	return Envelope{Type: h.frameType, Length: h.frameLength, StreamID: h.streamID}
}

// readVarint consumes one variable-length integer if all its bytes are present.
func readVarint(buf *bytes.Buffer) (uint64, bool) {
	b := buf.Bytes()
	if len(b) == 0 || len(b) < 1<<(b[0]>>6) {
		return 0, false
	}
	v, err := quicvarint.Read(buf)
	if err != nil {
		return 0, false
	}
	return v, true
}
