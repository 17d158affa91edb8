package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the client can report.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindServer     Kind = "server"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUnknown    Kind = "unknown"
)

// Sentinels for errors.Is matching on the kind of an *Error.
var (
	ErrTransport  = &Error{Kind: KindTransport, Message: "transport error"}
	ErrAuth       = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrServer     = &Error{Kind: KindServer, Message: "server error"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUnknown    = &Error{Kind: KindUnknown, Message: "unknown error"}
)

// Error is the structured error returned by every client operation.
// It is never modified after construction.
type Error struct {
	Kind    Kind
	Op      string // begin, commit, rollback, query, command, ...
	Message string
	Detail  interface{}
	Status  int // HTTP status, 0 when no response was received
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%s, status %d)", msg, e.Kind, e.Status)
	} else {
		msg = fmt.Sprintf("%s (%s)", msg, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying transport cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets callers
// write errors.Is(err, client.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// StatusCode returns the HTTP status that produced the error, or 500 when
// none was received.
func (e *Error) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// KindOf extracts the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func validationError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// RollbackError is returned by the transaction helpers when the work failed
// and the rollback issued afterwards failed too. The work failure stays the
// primary error: Unwrap returns it.
type RollbackError struct {
	Cause    error
	Rollback error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback also failed: %v)", e.Cause, e.Rollback)
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}
