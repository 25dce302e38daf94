// Package apperr defines the error taxonomy surfaced to API callers and the
// HTTP status each code maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the error classes defined by the system's error taxonomy.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeInvalidConfig Code = "invalid_config"
	CodeInvalidQuery  Code = "invalid_query"
	CodeInvalidStatus Code = "invalid_status"
	CodeAlreadyExists Code = "already_exists"
	CodeQueueFull     Code = "queue_full"
	CodePaused        Code = "index_paused"
	CodeInternal      Code = "internal"
)

// Error is a taxonomy-tagged error. Wrap library/IO errors with Wrap so the
// HTTP layer can translate them without string matching.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a tagged error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap tags cause with code, preserving it for errors.Is/As and logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func InvalidQuery(format string, args ...interface{}) *Error {
	return New(CodeInvalidQuery, fmt.Sprintf(format, args...))
}

func InvalidConfig(format string, args ...interface{}) *Error {
	return New(CodeInvalidConfig, fmt.Sprintf(format, args...))
}

func InvalidStatus(format string, args ...interface{}) *Error {
	return New(CodeInvalidStatus, fmt.Sprintf(format, args...))
}

func AlreadyExists(format string, args ...interface{}) *Error {
	return New(CodeAlreadyExists, fmt.Sprintf(format, args...))
}

func QueueFull(format string, args ...interface{}) *Error {
	return New(CodeQueueFull, fmt.Sprintf(format, args...))
}

func Paused(index string) *Error {
	return New(CodePaused, fmt.Sprintf("index %q is paused for writes", index))
}

func Internal(cause error) *Error {
	return Wrap(CodeInternal, "internal error", cause)
}

// As extracts the *Error wrapped in err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidConfig, CodeInvalidQuery:
		return http.StatusBadRequest
	case CodeInvalidStatus, CodeAlreadyExists:
		return http.StatusConflict
	case CodeQueueFull, CodePaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor resolves the HTTP status for an arbitrary error: tagged errors
// use their code, everything else maps to 500.
func StatusFor(err error) int {
	if e, ok := As(err); ok {
		return e.Code.HTTPStatus()
	}
	return http.StatusInternalServerError
}
