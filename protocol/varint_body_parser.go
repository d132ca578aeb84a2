// File: protocol/varint_body_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"

	"github.com/quic-go/quic-go/quicvarint"
)

// maxVarintLen is the longest variable-length integer encoding.
const maxVarintLen = 8

// varintBodyParser handles bodies made of exactly one variable-length
// integer: GOAWAY, CANCEL_PUSH and MAX_PUSH_ID. deliver is nil for frames
// that are validated and dropped.
type varintBodyParser struct {
	bodyParser
	deliver func(p *varintBodyParser, value uint64)
}

func (p *varintBodyParser) Parse(buf *bytes.Buffer) Result {
	length := p.bodyLength()
	if length == 0 || length > maxVarintLen {
		return p.sessionFailure(buf, ErrorFrame, "invalid_frame_length")
	}
	if !p.collect(buf) {
		return Incomplete
	}
	r := bytes.NewReader(p.acc.body)
	value, err := quicvarint.Read(r)
	if err != nil || r.Len() != 0 {
		return p.sessionFailure(buf, ErrorFrame, "invalid_frame_length")
	}
	if p.deliver != nil {
		p.deliver(p, value)
	}
	return Complete
}

func deliverGoAway(p *varintBodyParser, id uint64) {
	p.notifyGoAway(&GoAwayFrame{ID: id})
}
