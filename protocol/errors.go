// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "fmt"

// ErrorCode is an HTTP/3 application error code.
type ErrorCode int64

// HTTP/3 error codes (RFC 9114 §8.1).
const (
	ErrorNoError              ErrorCode = 0x100
	ErrorGeneralProtocol      ErrorCode = 0x101
	ErrorInternal             ErrorCode = 0x102
	ErrorStreamCreation       ErrorCode = 0x103
	ErrorClosedCriticalStream ErrorCode = 0x104
	ErrorFrameUnexpected      ErrorCode = 0x105
	ErrorFrame                ErrorCode = 0x106
	ErrorExcessiveLoad        ErrorCode = 0x107
	ErrorID                   ErrorCode = 0x108
	ErrorSettings             ErrorCode = 0x109
	ErrorMissingSettings      ErrorCode = 0x10a
	ErrorRequestRejected      ErrorCode = 0x10b
	ErrorRequestCancelled     ErrorCode = 0x10c
	ErrorRequestIncomplete    ErrorCode = 0x10d
	ErrorMessage              ErrorCode = 0x10e
	ErrorConnect              ErrorCode = 0x10f
	ErrorVersionFallback      ErrorCode = 0x110
)

var errorCodeNames = map[ErrorCode]string{
	ErrorNoError:              "H3_NO_ERROR",
	ErrorGeneralProtocol:      "H3_GENERAL_PROTOCOL_ERROR",
	ErrorInternal:             "H3_INTERNAL_ERROR",
	ErrorStreamCreation:       "H3_STREAM_CREATION_ERROR",
	ErrorClosedCriticalStream: "H3_CLOSED_CRITICAL_STREAM",
	ErrorFrameUnexpected:      "H3_FRAME_UNEXPECTED",
	ErrorFrame:                "H3_FRAME_ERROR",
	ErrorExcessiveLoad:        "H3_EXCESSIVE_LOAD",
	ErrorID:                   "H3_ID_ERROR",
	ErrorSettings:             "H3_SETTINGS_ERROR",
	ErrorMissingSettings:      "H3_MISSING_SETTINGS",
	ErrorRequestRejected:      "H3_REQUEST_REJECTED",
	ErrorRequestCancelled:     "H3_REQUEST_CANCELLED",
	ErrorRequestIncomplete:    "H3_REQUEST_INCOMPLETE",
	ErrorMessage:              "H3_MESSAGE_ERROR",
	ErrorConnect:              "H3_CONNECT_ERROR",
	ErrorVersionFallback:      "H3_VERSION_FALLBACK",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("H3_ERROR(0x%x)", int64(c))
}

// Scope is the blast radius of a failure.
type Scope int

const (
	// ScopeSession failures end the whole connection.
	ScopeSession Scope = iota
	// ScopeStream failures are local to one stream.
	ScopeStream
)

func (s Scope) String() string {
	if s == ScopeStream {
		return "stream"
	}
	return "session"
}

// Failure describes a protocol violation detected while parsing.
type Failure struct {
	Scope    Scope
	Code     ErrorCode
	StreamID uint64
	Reason   string
}

func (f *Failure) Error() string {
	if f.Scope == ScopeStream {
		return fmt.Sprintf("h3 %s failure on stream %d: %s (%s)", f.Scope, f.StreamID, f.Reason, f.Code)
	}
	return fmt.Sprintf("h3 %s failure: %s (%s)", f.Scope, f.Reason, f.Code)
}
