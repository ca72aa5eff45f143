// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Upstream errors
	ErrUpstreamUnavailable = &Error{Code: "UPSTREAM_UNAVAILABLE", Message: "upstream source unavailable"}
	ErrParse               = &Error{Code: "PARSE_ERROR", Message: "record parse failed"}

	// Alignment errors
	ErrAlignmentGap = &Error{Code: "ALIGNMENT_GAP", Message: "no price history inside window"}

	// Artifact store errors
	ErrNotFound = &Error{Code: "NOT_FOUND", Message: "artifact not found"}
	ErrCorrupt  = &Error{Code: "CORRUPT", Message: "artifact schema mismatch or unreadable payload"}

	// Model and inference errors
	ErrModelMissing   = &Error{Code: "MODEL_MISSING", Message: "model run absent or incomplete"}
	ErrSchemaMismatch = &Error{Code: "SCHEMA_MISMATCH", Message: "dataset features do not match model features"}
	ErrInvariant      = &Error{Code: "INVARIANT_VIOLATION", Message: "internal invariant violated"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
