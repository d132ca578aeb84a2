// File: protocol/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// FrameListener receives parsed frames and failures. Panics raised by an
// implementation are recovered and logged by the parser; they never reach
// parser state.
type FrameListener interface {
	OnData(streamID uint64, frame *DataFrame)
	OnHeaders(streamID uint64, frame *HeadersFrame)
	OnSettings(frame *SettingsFrame)
	OnGoAway(frame *GoAwayFrame)
	OnSessionFailure(code ErrorCode, reason string)
	OnStreamFailure(streamID uint64, code ErrorCode, reason string)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnData(uint64, *DataFrame) {}
func (NopListener) OnHeaders(uint64, *HeadersFrame) {}
func (NopListener) OnSettings(*SettingsFrame) {}
func (NopListener) OnGoAway(*GoAwayFrame) {}
func (NopListener) OnSessionFailure(ErrorCode, string) {}
func (NopListener) OnStreamFailure(uint64, ErrorCode, string) {}
