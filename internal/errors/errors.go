// Package errors provides structured error handling with HTTP status mapping.
//
// The engine's error taxonomy: upstream unavailability is external (502) and
// the only category surfaced to query callers; invalid input is validation
// (400); degraded dependencies (sentiment classifier, distributed cache) are
// never represented as errors at all — they are absorbed with a logged
// degraded-mode marker at the point of failure.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes an error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeExternal indicates an unavailable upstream collaborator (HTTP 502)
	TypeExternal ErrorType = "external"
	// TypeInternal indicates a server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error is a structured error with a category, message, and optional cause.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error category to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates an invalid-input error (HTTP 400).
func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// NotFound creates a not-found error (HTTP 404).
func NotFound(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

// External creates an upstream-unavailable error (HTTP 502).
func External(message string, cause error) *Error {
	return &Error{Type: TypeExternal, Message: message, Cause: cause}
}

// Internal creates a server-side error (HTTP 500).
func Internal(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// Response is the JSON error body sent to clients.
type Response struct {
	Error string    `json:"error"`
	Type  ErrorType `json:"type"`
}

// ToResponse converts an Error into its JSON representation.
func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type}
}

// AsStructured converts any error into a structured *Error, wrapping unknown
// errors as internal.
func AsStructured(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
