// File: protocol/data_body_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "bytes"

// dataBodyParser accumulates a DATA body up to maxBody. Larger bodies are
// skipped and reported as a stream failure once the frame boundary passed.
type dataBodyParser struct {
	bodyParser
	maxBody uint64
}

func (p *dataBodyParser) Parse(buf *bytes.Buffer) Result {
	if p.bodyLength() > p.maxBody {
		if !p.skip(buf) {
			return Incomplete
		}
		return p.streamFailure(ErrorExcessiveLoad, "data_too_large")
	}
	if !p.collect(buf) {
		return Incomplete
	}
	p.notifyData(&DataFrame{Data: p.takeBody()})
	return Complete
}
