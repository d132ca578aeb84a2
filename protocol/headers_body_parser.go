// File: protocol/headers_body_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "bytes"

// headersBodyParser collects an encoded field section. A HEADERS frame can
// not be empty.
type headersBodyParser struct {
	bodyParser
	maxBody uint64
}

func (p *headersBodyParser) Parse(buf *bytes.Buffer) Result {
	length := p.bodyLength()
	if length == 0 {
		return p.emptyBody(buf)
	}
	if length > p.maxBody {
		if !p.skip(buf) {
			return Incomplete
		}
		return p.streamFailure(ErrorExcessiveLoad, "headers_too_large")
	}
	if !p.collect(buf) {
		return Incomplete
	}
	p.notifyHeaders(&HeadersFrame{Block: p.takeBody()})
	return Complete
}
