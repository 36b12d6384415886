// Package domain holds the error vocabulary shared by the booking store,
// the lifecycle manager and the transport layer.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindInvalidState  Kind = "invalid_state"
	KindConflict      Kind = "conflict"
)

// Error is a domain failure carrying a kind and a user-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is a domain error of the same kind,
// so errors.Is(err, ErrConflict) matches every conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Message: "not authorized"}
	ErrInvalidState  = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "conflict"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// NotFound reports an unknown identifier.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Authorization reports an actor lacking the role or ownership for an action.
func Authorization(format string, args ...any) *Error {
	return newError(KindAuthorization, format, args...)
}

// InvalidState reports an action not permitted from the current status.
func InvalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

// Conflict reports an overlap with an approved booking.
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// BookingNotFound is the not-found error for a booking id.
func BookingNotFound(id string) *Error {
	return NotFound("Booking not found with id of %s", id)
}

// KindOf returns the kind of the first domain error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
