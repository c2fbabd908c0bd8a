// Package apperr defines the domain failure taxonomy shared by services
// and the HTTP layer. Services raise these; the HTTP error translator is
// the only place that decides the externally visible status and body.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindUnauthorized
	KindForbidden
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a domain failure with a kind, a human-readable detail string and,
// for validation failures, field-level detail.
type Error struct {
	Kind   Kind
	Detail string
	// Fields maps field names to validation messages. Only set for
	// KindValidation.
	Fields map[string]string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports that the named resource does not exist.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Detail: resource + " not found"}
}

// Conflict reports a uniqueness conflict (duplicate resource).
func Conflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// Validation reports malformed or out-of-range input. fields carries
// per-field messages and may be nil.
func Validation(detail string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Fields: fields}
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(detail string) *Error {
	if detail == "" {
		detail = "Could not validate credentials"
	}
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

// Forbidden reports insufficient permissions.
func Forbidden(detail string) *Error {
	if detail == "" {
		detail = "Not enough permissions"
	}
	return &Error{Kind: KindForbidden, Detail: detail}
}

// Internal wraps an unclassified failure. The detail never reaches clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Detail: "internal error", Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
