package auth

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. The set is closed: the HTTP boundary
// switches over it exhaustively and anything it does not recognize is
// treated as an implementation fault.
type Kind string

const (
	KindBadRequest     Kind = "BadRequest"
	KindUnauthorized   Kind = "Unauthorized"
	KindForbidden      Kind = "Forbidden"
	KindNotFound       Kind = "NotFound"
	KindConflict       Kind = "Conflict"
	KindImplementation Kind = "Implementation"
)

// Error is the single error type crossing the domain boundary. Cause is
// optional diagnostic context; it is logged, never returned to callers
// verbatim unless the boundary decides it is safe.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Kind, so callers can compare against
// bare kind sentinels without caring about the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func BadRequest(msg string) *Error     { return &Error{Kind: KindBadRequest, Message: msg} }
func Unauthorized(msg string) *Error   { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) *Error      { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) *Error       { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error       { return &Error{Kind: KindConflict, Message: msg} }
func Implementation(msg string) *Error { return &Error{Kind: KindImplementation, Message: msg} }

// WithCause attaches diagnostic context and returns the same error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf extracts the kind of err. Errors that did not originate in this
// package are implementation faults: they were never meant to reach a caller.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindImplementation
}
