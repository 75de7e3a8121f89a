package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is the structured error returned across package boundaries. It
// implements the error interface and carries the code that HTTP handlers
// and gRPC interceptors translate into a status.
//
// Error values are:
//   - Immutable: WithDetail and WithDetails return copies
//   - Chainable: Cause is exposed through Unwrap for errors.Is and errors.As
//   - Structured: the code maps to an HTTP status via HTTPStatus
//   - Loggable: %+v prints code, message, details and cause
//
// Only Code and Message ever reach a client. Cause and Details are for logs.
type Error struct {
	// Code is the machine-readable error code (e.g. "AUTH_005").
	Code Code

	// Message is the human-readable message. It may be shown to clients
	// and must not contain secrets, tokens or password material.
	Message string

	// Cause is the underlying error, if any. It is never rendered in a
	// response body.
	Cause error

	// Details holds structured context for logs, such as a key identifier
	// or the email of a duplicate registration.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause so that errors.Is and errors.As see through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// statusOverrides lists codes whose status differs from their category.
var statusOverrides = map[Code]int{
	CodeNoIdentity: http.StatusUnauthorized,
}

var categoryStatus = map[string]int{
	"VAL":     http.StatusBadRequest,
	"AUTH":    http.StatusUnauthorized,
	"AUTHZ":   http.StatusForbidden,
	"NF":      http.StatusNotFound,
	"CONF":    http.StatusConflict,
	"RATE":    http.StatusTooManyRequests,
	"KEY":     http.StatusInternalServerError,
	"INT":     http.StatusInternalServerError,
	"UNAVAIL": http.StatusServiceUnavailable,
	"TIMEOUT": http.StatusGatewayTimeout,
}

// HTTPStatus returns the HTTP status code for the error. Unknown categories
// map to 500.
func (e *Error) HTTPStatus() int {
	if status, ok := statusOverrides[e.Code]; ok {
		return status
	}
	if status, ok := categoryStatus[e.Code.Category()]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetails returns a copy of e with details merged in. e is unchanged.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{Code: e.Code, Message: e.Message, Cause: e.Cause, Details: merged}
}

// WithDetail returns a copy of e with one detail added. e is unchanged.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Format implements fmt.Formatter. %+v prints code, message, details and
// the cause chain; %v and %s print Error().
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fmt.Fprint(s, e.Error())
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
