// File: protocol/frames.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// Envelope is the type and length preceding a frame body.
type Envelope struct {
	Type     FrameType
	Length   uint64
	StreamID uint64
}

// DataFrame carries request or response content. The parser does not
// retain Data after delivery.
type DataFrame struct {
	Data []byte
}

// HeadersFrame carries an encoded field section. QPACK decoding happens
// above this layer.
type HeadersFrame struct {
	Block []byte
}

// Setting identifiers (RFC 9114 §7.2.4.1, RFC 9204 §5).
const (
	SettingQPACKMaxTableCapacity uint64 = 0x01
	SettingMaxFieldSectionSize   uint64 = 0x06
	SettingQPACKBlockedStreams   uint64 = 0x07
)

// Setting is one identifier/value pair.
type Setting struct {
	ID    uint64
	Value uint64
}

// SettingsFrame lists settings in wire order.
type SettingsFrame struct {
	Settings []Setting
}

// Get returns the value of id.
func (f *SettingsFrame) Get(id uint64) (uint64, bool) {
	for _, s := range f.Settings {
		if s.ID == id {
			return s.Value, true
		}
	}
	return 0, false
}

// GoAwayFrame starts a graceful shutdown; ID is a stream or push ID.
type GoAwayFrame struct {
	ID uint64
}
