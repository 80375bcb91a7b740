// Package apperr defines the closed set of domain error kinds used across the
// API. Handlers and services construct *Error values; the error-handling
// middleware is the only place that turns them into HTTP responses, so the
// status classification lives here as an exhaustive switch rather than being
// duck-typed at each call site.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind classifies a domain error. The set is closed: anything not produced by
// an application constructor is folded into KindInternal by From.
type Kind int

const (
	KindInternal Kind = iota // unclassified / unexpected
	KindNotFound
	KindValidation
	KindUnauthorized
	KindForbidden
	KindConflict
	KindUnprocessable
	KindRateLimited
	KindDatabase
	KindUpstream
)

// Error is the application's domain error. Message is safe to return to
// clients for 4xx kinds; for 5xx kinds the middleware substitutes a generic
// message and keeps the real one server-side.
type Error struct {
	Kind    Kind
	Code    string                 // stable machine-readable code, e.g. "HOSPITAL_NOT_FOUND"
	Message string                 // human-readable message
	Details map[string]interface{} // optional structured context
	err     error                  // wrapped cause, if any
	stack   []byte                 // construction-site stack, server-side kinds only
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.err }

// Stack returns the trace captured where the error was constructed. Only the
// server-side kinds record one; client-safe errors return nil because their
// origin is the request itself, not a fault worth tracing.
func (e *Error) Stack() []byte { return e.stack }

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindDatabase, KindUpstream, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ClientSafe reports whether Message may be disclosed to HTTP clients.
// Server-side failure detail (database errors, upstream errors, unclassified
// errors) must never leak.
func (e *Error) ClientSafe() bool {
	return e.HTTPStatus() < http.StatusInternalServerError
}

// NotFoundf builds a KindNotFound error with a formatted client-safe message.
func NotFoundf(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidation error with a formatted client-safe message.
func Validationf(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

// Forbidden builds a KindForbidden error.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// Conflictf builds a KindConflict error with a formatted client-safe message.
func Conflictf(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Unprocessablef builds a KindUnprocessable error with a formatted message.
func Unprocessablef(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnprocessable, Code: code, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a KindRateLimited error.
func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: message}
}

// Database wraps a persistence failure. The message describes the operation,
// not the underlying SQL error, which stays in the wrapped cause.
func Database(operation string, err error) *Error {
	return &Error{
		Kind:    KindDatabase,
		Code:    "DATABASE_ERROR",
		Message: fmt.Sprintf("database operation failed: %s", operation),
		err:     err,
		stack:   debug.Stack(),
	}
}

// Upstream wraps a failure talking to an external service.
func Upstream(service string, err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Code:    "UPSTREAM_ERROR",
		Message: fmt.Sprintf("upstream request to %s failed", service),
		err:     err,
		stack:   debug.Stack(),
	}
}

// Internalf builds an unclassified internal error.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    "INTERNAL_ERROR",
		Message: fmt.Sprintf(format, args...),
		stack:   debug.Stack(),
	}
}

// WithDetails attaches structured context and returns the same error for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// From classifies an arbitrary error. Application-constructed *Error values
// pass through unchanged; anything else becomes an unclassified internal error
// wrapping the original, so third-party and runtime failures never carry
// implementation detail to clients.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{
		Kind:    KindInternal,
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		err:     err,
		stack:   debug.Stack(),
	}
}

// Label returns the human-readable error-category label for an HTTP status.
// Unmapped statuses return "Unknown Error".
func Label(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not Found"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusUnprocessableEntity:
		return "Unprocessable Entity"
	case http.StatusTooManyRequests:
		return "Too Many Requests"
	case http.StatusInternalServerError:
		return "Internal Server Error"
	case http.StatusBadGateway:
		return "Bad Gateway"
	case http.StatusServiceUnavailable:
		return "Service Unavailable"
	case http.StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return "Unknown Error"
	}
}
