// Package barrelerr provides the typed error kinds used throughout
// Barrel. Errors carry a Kind instead of relying on string matching, so
// callers (and the out-of-scope HTTP collaborator) can map them to a
// stable status without parsing messages.
package barrelerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies the class of a Barrel error.
type Kind int

const (
	// Unknown is the zero value; never returned by Barrel itself.
	Unknown Kind = iota

	// NotFound means an unknown database, document or revision.
	NotFound

	// DocExists means a write without _rev targeted an existing live
	// document.
	DocExists

	// RevisionConflict means a write's _rev was not a current leaf.
	RevisionConflict

	// BadDoc means malformed input: not a JSON object, or _rev
	// supplied to Post.
	BadDoc

	// UnknownStore means a store name was not registered.
	UnknownStore

	// StorageError wraps an underlying KV engine failure.
	StorageError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case DocExists:
		return "doc_exists"
	case RevisionConflict:
		return "revision_conflict"
	case BadDoc:
		return "bad_doc"
	case UnknownStore:
		return "unknown_store"
	case StorageError:
		return "storage_error"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code the out-of-scope HTTP collaborator
// should use for errors of this kind, per the mapping table in the
// specification's error handling section.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return 404
	case DocExists, RevisionConflict:
		return 409
	case BadDoc:
		return 400
	case UnknownStore:
		return 400
	default:
		return 500
	}
}

// Error is a Barrel error: a Kind plus a human-readable reason and an
// optional wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Cause returns the wrapped error, if any, satisfying
// github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is/errors.As from the standard library.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus implements the status-carrying interface the HTTP
// collaborator expects.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// New returns a new Error of the given kind with a formatted reason.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a storage_error, preserving the cause
// chain via github.com/pkg/errors so callers can still unwrap to the
// underlying KV engine error.
func Wrap(err error, reason string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:   StorageError,
		Reason: reason,
		cause:  pkgerrors.WithMessage(err, reason),
	}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

// Conflict builds a DocExists or RevisionConflict error.
func Conflict(kind Kind, format string, args ...interface{}) *Error {
	if kind != DocExists && kind != RevisionConflict {
		panic("barrelerr: Conflict requires DocExists or RevisionConflict")
	}
	return New(kind, format, args...)
}

// BadDocf builds a BadDoc error.
func BadDocf(format string, args ...interface{}) *Error {
	return New(BadDoc, format, args...)
}

// Is reports whether err is a Barrel *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
