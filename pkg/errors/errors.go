package salon_errors

import (
	"errors"
	"fmt"
)

// Kind is the stable, client-visible category of a failure.
type Kind string

const (
	KindAuthentication Kind = "AuthenticationError"
	KindAuthorization  Kind = "AuthorizationError"
	KindNotFound       Kind = "NotFoundError"
	KindValidation     Kind = "ValidationError"
	KindConflict       Kind = "ConflictError"
	KindRateLimited    Kind = "RateLimited"
	KindInternal       Kind = "InternalError"
)

// Common errors
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limited")
	ErrAlreadyExists = errors.New("already exists")
)

var kindSentinels = map[Kind]error{
	KindAuthentication: ErrUnauthorized,
	KindAuthorization:  ErrForbidden,
	KindNotFound:       ErrNotFound,
	KindValidation:     ErrInvalidInput,
	KindConflict:       ErrConflict,
	KindRateLimited:    ErrRateLimited,
}

// Error carries a Kind and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is lets errors.Is(err, ErrNotFound) match a *Error of the matching kind.
func (e *Error) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && sentinel == target {
		return true
	}
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Authentication(format string, args ...interface{}) error {
	return newError(KindAuthentication, format, args...)
}

func Authorization(format string, args ...interface{}) error {
	return newError(KindAuthorization, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

func RateLimited(format string, args ...interface{}) error {
	return newError(KindRateLimited, format, args...)
}

// KindOf classifies any error. Bare sentinels map to their kind; anything
// unrecognised is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// Reason returns the client-safe message for err. Internal errors are not
// echoed back to callers.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
