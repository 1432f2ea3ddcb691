// Package errors provides structured error types for osgirepo.
//
// Every failure that leaves a pipeline stage carries a [Code] so callers can
// tell the recoverable categories from the fatal ones:
//   - INVALID_CONFIG, UNRESOLVED: configuration problems, fatal
//   - NOT_FOUND, NETWORK, TIMEOUT, OFFLINE: resolution problems, fatal unless
//     the artifact is already cached
//   - INVALID_MANIFEST: per-artifact validation, absorbed and logged
//   - IO: copy, download and archive failures, fatal
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidConfig, "cache directory is required")
//	if errors.Is(err, errors.ErrCodeInvalidConfig) {
//	    // abort
//	}
//
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "copy %s to %s", src, dst)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeUnresolved    Code = "UNRESOLVED"

	// Resolution errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeTimeout  Code = "TIMEOUT"
	ErrCodeOffline  Code = "OFFLINE"

	// Validation errors
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"

	// I/O errors
	ErrCodeIO Code = "IO_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix, followed by
// the cause when one is present.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

// IsRecoverable reports whether err only affects a single artifact and must
// not abort the run.
func IsRecoverable(err error) bool {
	return GetCode(err) == ErrCodeInvalidManifest
}

// IO wraps an I/O failure with its source and destination.
func IO(cause error, op, src, dst string) *Error {
	if dst == "" {
		return Wrap(ErrCodeIO, cause, "%s %s", op, src)
	}
	return Wrap(ErrCodeIO, cause, "%s %s to %s", op, src, dst)
}
