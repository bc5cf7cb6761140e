// Package apierr implements the error classification for the transcription
// API. Every failure, wherever it originates, is funneled through one of
// these types before it reaches the HTTP boundary, so the response shape and
// the error-type to status-code mapping stay uniform and stable.
package apierr

import (
	"fmt"
	"net/http"
	"strings"
)

// Type is the machine-readable error classification exposed to clients.
type Type string

const (
	// TypeInvalidRequest indicates a malformed or out-of-range request parameter.
	TypeInvalidRequest Type = "invalid_request_error"
	// TypeInvalidFileFormat indicates the upload's format is not in the allow-set.
	TypeInvalidFileFormat Type = "invalid_file_format"
	// TypeFileTooLarge indicates the upload exceeds the size limit.
	TypeFileTooLarge Type = "file_too_large"
	// TypeFileTooLong indicates the audio exceeds the duration limit.
	TypeFileTooLong Type = "file_too_long"
	// TypeInvalidAudioFile indicates a corrupt or undecodable container.
	TypeInvalidAudioFile Type = "invalid_audio_file"
	// TypeRateLimitExceeded indicates the admission gate is saturated.
	TypeRateLimitExceeded Type = "rate_limit_exceeded"
	// TypeServerError indicates an internal failure during execution.
	TypeServerError Type = "server_error"
)

// statusByType is the stable error-type to HTTP status mapping.
var statusByType = map[Type]int{
	TypeInvalidRequest:    http.StatusBadRequest,
	TypeInvalidFileFormat: http.StatusBadRequest,
	TypeFileTooLarge:      http.StatusRequestEntityTooLarge,
	TypeFileTooLong:       http.StatusRequestEntityTooLarge,
	TypeInvalidAudioFile:  http.StatusUnprocessableEntity,
	TypeRateLimitExceeded: http.StatusServiceUnavailable,
	TypeServerError:       http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for an error type.
// Unknown types map to 500.
func StatusFor(t Type) int {
	if s, ok := statusByType[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is the unified application error type.
type Error struct {
	// Type is the machine-readable error classification.
	Type Type
	// Message is a human-readable error message safe to show clients.
	Message string
	// HTTPStatus is the HTTP status code for this error.
	HTTPStatus int
	// RequestID correlates the error with the request that produced it.
	RequestID string
	// Cause is the underlying error. Logged server-side, never serialized.
	Cause error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRequestID sets the request id and returns the receiver.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// Retryable reports whether the client can retry the request unchanged.
// Only capacity errors are; input errors need a fixed request first and
// execution errors give no such guarantee.
func (e *Error) Retryable() bool {
	return e.Type == TypeRateLimitExceeded
}

// New creates a new Error with the status derived from the type.
func New(t Type, message string) *Error {
	return &Error{
		Type:       t,
		Message:    message,
		HTTPStatus: StatusFor(t),
	}
}

// --- Constructors, one per classification ---

// InvalidRequest creates an error for a bad request parameter.
func InvalidRequest(reason string) *Error {
	return New(TypeInvalidRequest, reason)
}

// FileTooLarge creates an error for an upload exceeding the size limit.
func FileTooLarge(size, maxSize int64) *Error {
	return New(TypeFileTooLarge, fmt.Sprintf(
		"Audio file too large: %.1fMB (max: %.1fMB)",
		float64(size)/(1024*1024), float64(maxSize)/(1024*1024)))
}

// FileTooLong creates an error for audio exceeding the duration limit.
func FileTooLong(duration, maxDuration float64) *Error {
	return New(TypeFileTooLong, fmt.Sprintf(
		"Audio file too long: %.1f minutes (max: %.1f minutes)",
		duration/60, maxDuration/60))
}

// InvalidFileFormat creates an error for an upload outside the allow-set.
func InvalidFileFormat(format string, allowed []string) *Error {
	return New(TypeInvalidFileFormat, fmt.Sprintf(
		"Unsupported file format: %s. Allowed formats: %s",
		format, strings.Join(allowed, ", ")))
}

// InvalidAudioFile creates an error for a corrupt or undecodable upload.
func InvalidAudioFile(reason string) *Error {
	return New(TypeInvalidAudioFile, "Invalid audio file: "+reason)
}

// RateLimitExceeded creates an error for a saturated admission gate.
func RateLimitExceeded(maxConcurrent int) *Error {
	return New(TypeRateLimitExceeded, fmt.Sprintf(
		"Server busy. Maximum %d concurrent requests.", maxConcurrent))
}

// ServerError creates an error for an internal failure. The cause is kept
// for server-side logging; the client sees only a generic message.
func ServerError(cause error) *Error {
	return New(TypeServerError, "Internal server error").WithCause(cause)
}
