// Package errors defines the error kinds shared across the collection
// manager, collection, query planner, and shard index, plus a translator
// to HTTP status codes for the API surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrInternal          = errors.New("internal error")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// AppError is the result-carrier wrapper: an (kind, message) pair rather
// than an exception, matching the "no exception-based control flow"
// design note.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

// Error returns the message alone, so callers and API clients see exactly
// the text the error was built with; the sentinel kind stays reachable
// through Unwrap. An empty message falls back to the sentinel's text.
func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), StatusCode: statusCode}
}

// BadRequest builds the most common error kind: schema/parse/validation
// failures raised by the query planner and by document ingestion.
func BadRequest(format string, args ...any) *AppError {
	return Newf(ErrBadRequest, http.StatusBadRequest, format, args...)
}

func NotFound(format string, args ...any) *AppError {
	return Newf(ErrNotFound, http.StatusNotFound, format, args...)
}

func Conflict(format string, args ...any) *AppError {
	return Newf(ErrConflict, http.StatusConflict, format, args...)
}

func Unauthorized(format string, args ...any) *AppError {
	return Newf(ErrUnauthorized, http.StatusUnauthorized, format, args...)
}

func Internal(format string, args ...any) *AppError {
	return Newf(ErrInternal, http.StatusInternalServerError, format, args...)
}

func ResourceExhausted(format string, args ...any) *AppError {
	return Newf(ErrResourceExhausted, http.StatusInsufficientStorage, format, args...)
}

// HTTPStatusCode maps an error to the status code the transport should use.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrResourceExhausted):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
