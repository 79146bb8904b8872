// ABOUTME: Error taxonomy shared by the registry, tenant stores and HTTP surface
// ABOUTME: Domain sentinels carry a Kind so the boundary can map them without string matching

package fault

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers that need to react to it.
type Kind string

const (
	Internal         Kind = "internal"
	NotFound         Kind = "not found"
	Conflict         Kind = "conflict"
	Unauthorized     Kind = "unauthorized"
	StoreUnavailable Kind = "store unavailable"
	Validation       Kind = "validation"
)

// Error is a classified error. Msg is safe to show to API callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New returns a classified sentinel error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err under kind, keeping err reachable through errors.Is/As.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or Internal when nothing in the chain is classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Message returns the caller-facing message of the outermost classified error.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	return "internal error"
}

// HTTPStatus maps a kind to the status code used by the JSON API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusUnauthorized
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	case Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
