// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-h3.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrClosed            = errors.New("closed")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrOperationTimeout  = errors.New("operation timeout")
	ErrNotSupported      = errors.New("operation not supported")
	ErrNotFound          = errors.New("resource not found")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeNotFound
	ErrCodeClosed
	ErrCodeInternal
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeInvalidArgument:   ErrInvalidArgument,
	ErrCodeResourceExhausted: ErrResourceExhausted,
	ErrCodeTimeout:           ErrOperationTimeout,
	ErrCodeNotSupported:      ErrNotSupported,
	ErrCodeNotFound:          ErrNotFound,
	ErrCodeClosed:            ErrClosed,
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches the sentinel error that corresponds to e.Code.
func (e *Error) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}
