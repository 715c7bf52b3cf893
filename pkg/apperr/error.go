// Package apperr provides a single structured error taxonomy used across
// every core component, mapped onto the abstract error kinds named by
// spec.md §7.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the abstract error kinds spec.md §7 names. Policy
// (retry, degrade, fatal, surface-and-continue) is decided by the caller
// per kind, never by string-matching Code.
type Kind string

const (
	// KindTransientTransport covers model/provider I/O failures: §4.2
	// retries once on the fallback back-end before the caller degrades.
	KindTransientTransport Kind = "TRANSIENT_TRANSPORT"
	// KindSchemaViolation covers model output that fails schema
	// validation; treated identically to a transport failure (retry
	// fallback, then null-score).
	KindSchemaViolation Kind = "SCHEMA_VIOLATION"
	// KindNotFound covers a store lookup miss; in C10 this aborts the
	// pipeline for that message.
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict covers an optimistic-lock rejection on the review
	// queue or a preference row; the caller retries its read-modify-write.
	KindConflict Kind = "CONFLICT"
	// KindInvariantViolation covers a broken domain invariant (e.g.
	// confidence outside [0,1]); fatal, aborts the current operation.
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
	// KindExternal covers mail-provider auth/permission failures;
	// surfaced to the caller, counted-and-continued in scans, rejected in
	// webhooks.
	KindExternal Kind = "EXTERNAL"
)

// httpStatus is retained for the thin transport adapters even though the
// full REST surface is out of scope; adapter/in/http uses it for its one
// webhook route's error responses.
var httpStatus = map[Kind]int{
	KindTransientTransport: http.StatusBadGateway,
	KindSchemaViolation:    http.StatusBadGateway,
	KindNotFound:           http.StatusNotFound,
	KindConflict:           http.StatusConflict,
	KindInvariantViolation: http.StatusInternalServerError,
	KindExternal:           http.StatusBadGateway,
}

// AppError is a structured application error carrying a Kind, a
// human-readable message, optional structured details, and the wrapped
// underlying error.
type AppError struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus maps the error's Kind to a status code for the one transport
// boundary that needs it (the webhook ingestion route).
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an AppError of the given kind with no wrapped cause.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap constructs an AppError of the given kind around an existing error.
func Wrap(err error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func TransientTransport(message string, err error) *AppError {
	return &AppError{Kind: KindTransientTransport, Message: message, Err: err}
}

func SchemaViolation(message string, err error) *AppError {
	return &AppError{Kind: KindSchemaViolation, Message: message, Err: err}
}

func NotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func InvariantViolation(message string) *AppError {
	return &AppError{Kind: KindInvariantViolation, Message: message}
}

func External(service string, err error) *AppError {
	return &AppError{
		Kind:    KindExternal,
		Message: fmt.Sprintf("external service error: %s", service),
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// As extracts the *AppError from err, if any.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
