package session

import (
	"errors"
	"fmt"
)

const (
	CodeUpstream         = "upstream"
	CodeUnauthenticated  = "unauthenticated"
	CodeInvalidArgument  = "invalid-argument"
	CodeUnsupported      = "unsupported-operation"
	CodeTokenExchange    = "token-exchange-failed"
	CodeStoreUnavailable = "store-unavailable"
)

// ErrNoCredential is returned by a store that has no active credential for
// the requested subject.
var ErrNoCredential = errors.New("session: no active store credential")

// Error is the failed outcome of a session operation.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err unchanged when it already is an *Error and wraps it
// with code and message otherwise.
func Wrap(err error, code, message string) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of err, or CodeUpstream for foreign errors.
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUpstream
}
