// Package apperr defines the error taxonomy shared by the scheduling core and
// its HTTP boundary. Every failure the engine surfaces carries a Kind so
// callers can tell "does not exist" apart from "could not check".
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindUnreachable       Kind = "unreachable_dependency"
	KindInvalidTransition Kind = "invalid_transition"
	KindStorage           Kind = "storage"
	KindForbidden         Kind = "forbidden"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// Error is a kind-tagged application error. Entity names the referenced
// entity involved (e.g. "patient", "appointment") when there is one.
type Error struct {
	Kind    Kind
	Entity  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity, message string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Unreachable reports that a dependency needed to verify entity could not be
// consulted. err is the transport-level cause.
func Unreachable(entity, message string, err error) *Error {
	return &Error{Kind: KindUnreachable, Entity: entity, Message: message, Err: err}
}

func InvalidTransition(entity, message string) *Error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, Message: message}
}

// Storage wraps a persistence failure.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Canceled reports that the caller's own context ended before the operation
// completed. err is the context error.
func Canceled(message string, err error) *Error {
	return &Error{Kind: KindCanceled, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
// when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code used on the wire.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindUnreachable:
		return http.StatusBadGateway
	case KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Exposed reports whether the error message is safe to show to callers.
// Storage and internal failures only ever reach the logs.
func Exposed(kind Kind) bool {
	return kind != KindStorage && kind != KindInternal
}
