// File: protocol/settings_body_parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"

	"github.com/quic-go/quic-go/quicvarint"
)

// settingsBodyParser decodes identifier/value pairs. Identifiers reserved
// for HTTP/2 settings and repeated identifiers are connection errors.
type settingsBodyParser struct {
	bodyParser
	maxBody uint64
}

func (p *settingsBodyParser) Parse(buf *bytes.Buffer) Result {
	if p.bodyLength() > p.maxBody {
		return p.sessionFailure(buf, ErrorExcessiveLoad, "settings_too_large")
	}
	if !p.collect(buf) {
		return Incomplete
	}
	r := bytes.NewReader(p.acc.body)
	frame := &SettingsFrame{}
	seen := make(map[uint64]struct{})
	for r.Len() > 0 {
		id, err := quicvarint.Read(r)
		if err != nil {
			return p.sessionFailure(buf, ErrorFrame, "invalid_settings")
		}
		value, err := quicvarint.Read(r)
		if err != nil {
			return p.sessionFailure(buf, ErrorFrame, "invalid_settings")
		}
		if id >= 0x02 && id <= 0x05 {
			return p.sessionFailure(buf, ErrorSettings, "reserved_setting")
		}
		if _, dup := seen[id]; dup {
			return p.sessionFailure(buf, ErrorSettings, "duplicate_setting")
		}
		seen[id] = struct{}{}
		frame.Settings = append(frame.Settings, Setting{ID: id, Value: value})
	}
	p.notifySettings(frame)
	return Complete
}
