package errprocess

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classify an error for callers and transports
type Kind string

const (
	// NotFound room, message, user or item absent
	NotFound Kind = "not_found"
	// Forbidden non-participant, non-author, insufficient role
	Forbidden Kind = "forbidden"
	// InvalidArgument empty message, bad participant count, malformed token
	InvalidArgument Kind = "invalid_argument"
	// RateLimited admission denied
	RateLimited Kind = "rate_limited"
	// Conflict duplicate race or cap exceeded
	Conflict Kind = "conflict"
	// Internal storage or transport failure
	Internal Kind = "internal"
)

// Error carry a Kind next to the message and optional cause
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is match on Kind so errors.Is(err, &Error{Kind: Forbidden}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// New create an error of kind
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf create an error of kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attach kind and message to a cause
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf return the kind of err; errors without one are Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind check err against kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus map kind to a response status
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidArgument:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

