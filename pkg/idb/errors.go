package idb

import (
	"errors"
	"fmt"
)

// Error is a named engine error. Errors compare with errors.Is by name, so
// a returned error matches its sentinel regardless of message or cause.
type Error struct {
	Name    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Name
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrConstraint          = &Error{Name: "ConstraintError"}
	ErrData                = &Error{Name: "DataError"}
	ErrNotFound            = &Error{Name: "NotFoundError"}
	ErrInvalidState        = &Error{Name: "InvalidStateError"}
	ErrTransactionInactive = &Error{Name: "TransactionInactiveError"}
	ErrScope               = &Error{Name: "ScopeError"}
	ErrVersion             = &Error{Name: "VersionError"}
	ErrAbort               = &Error{Name: "AbortError"}
	ErrReadOnly            = &Error{Name: "ReadOnlyError"}
	ErrInvalidAccess       = &Error{Name: "InvalidAccessError"}
	ErrDataClone           = &Error{Name: "DataCloneError"}
	ErrSyntax              = &Error{Name: "SyntaxError"}
)

func newError(kind *Error, format string, args ...any) *Error {
	return &Error{Name: kind.Name, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind *Error, err error, format string, args ...any) *Error {
	return &Error{Name: kind.Name, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrorName returns the engine error name carried by err, or "" when err
// is not an engine error.
func ErrorName(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}
