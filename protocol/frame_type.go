// File: protocol/frame_type.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "fmt"

// FrameType is the HTTP/3 frame type.
type FrameType uint64

// HTTP/3 frame types (RFC 9114 §11.2.1).
const (
	FrameData        FrameType = 0x00
	FrameHeaders     FrameType = 0x01
	FrameCancelPush  FrameType = 0x03
	FrameSettings    FrameType = 0x04
	FramePushPromise FrameType = 0x05
	FrameGoAway      FrameType = 0x07
	FrameMaxPushID   FrameType = 0x0d
)

// HTTP/2 frame types that are reserved in HTTP/3 and must not be sent.
const (
	frameH2Priority     FrameType = 0x02
	frameH2Ping         FrameType = 0x06
	frameH2WindowUpdate FrameType = 0x08
	frameH2Continuation FrameType = 0x09
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FrameCancelPush:
		return "CANCEL_PUSH"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FrameGoAway:
		return "GOAWAY"
	case FrameMaxPushID:
		return "MAX_PUSH_ID"
	default:
		return fmt.Sprintf("UNKNOWN(0x%x)", uint64(t))
	}
}
