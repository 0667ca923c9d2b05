// Package apperr defines the error taxonomy shared by the store and the HTTP
// handlers. Each error carries a Code that decides the response status.
package apperr

import (
	"errors"
	"net/http"
)

// Code classifies an application error.
type Code string

const (
	// CodeValidation marks missing or malformed client input.
	CodeValidation Code = "validation_error"
	// CodeAuthentication marks missing, invalid or expired credentials.
	CodeAuthentication Code = "auth_error"
	// CodeConflict marks a uniqueness violation in the store.
	CodeConflict Code = "conflict_error"
	// CodeInternal marks any other store or server failure.
	CodeInternal Code = "internal_error"
)

// HTTPStatus maps the code to a response status. Conflicts are reported as
// 500 with the store's message, matching the public API contract.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is the application error type.
type Error struct {
	Code    Code   // Machine-readable classification
	Message string // Message returned to the caller
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps cause. The cause's message is used when
// message is empty.
func Wrap(code Code, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation is shorthand for New(CodeValidation, message).
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Unauthenticated is shorthand for New(CodeAuthentication, message).
func Unauthenticated(message string) *Error {
	return New(CodeAuthentication, message)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
