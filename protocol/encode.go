// File: protocol/encode.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "github.com/quic-go/quic-go/quicvarint"

// AppendFrame appends a frame with the given type and body to dst.
func AppendFrame(dst []byte, t FrameType, body []byte) []byte {
	dst = quicvarint.Append(dst, uint64(t))
	dst = quicvarint.Append(dst, uint64(len(body)))
	return append(dst, body...)
}

// AppendSettings appends a SETTINGS frame holding settings in order.
func AppendSettings(dst []byte, settings ...Setting) []byte {
	var body []byte
	for _, s := range settings {
		body = quicvarint.Append(body, s.ID)
		body = quicvarint.Append(body, s.Value)
	}
	return AppendFrame(dst, FrameSettings, body)
}

// AppendGoAway appends a GOAWAY frame for id.
func AppendGoAway(dst []byte, id uint64) []byte {
	return AppendFrame(dst, FrameGoAway, quicvarint.Append(nil, id))
}
