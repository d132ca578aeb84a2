// File: protocol/control_body_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "bytes"

// emptyBodyParser serves frame types configured to carry no body.
type emptyBodyParser struct {
	bodyParser
}

func (p *emptyBodyParser) Parse(buf *bytes.Buffer) Result {
	if p.bodyLength() != 0 {
		return p.emptyBody(buf)
	}
	return Complete
}

// unexpectedBodyParser rejects frame types a server must never receive.
type unexpectedBodyParser struct {
	bodyParser
}

func (p *unexpectedBodyParser) Parse(buf *bytes.Buffer) Result {
	return p.sessionFailure(buf, ErrorFrameUnexpected, "unexpected_frame")
}

// skipBodyParser discards bodies of unknown frame types.
type skipBodyParser struct {
	bodyParser
}

func (p *skipBodyParser) Parse(buf *bytes.Buffer) Result {
	if !p.skip(buf) {
		return Incomplete
	}
	return Complete
}
