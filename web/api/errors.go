// Package api defines the error envelope returned by the HTTP API.
package api

import (
	"errors"
	"net/http"
)

// Error is an API error. Its message is safe to show to clients; the cause is kept
// for logs and for errors.Is/As.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`

	cause error
}

// newError builds an Error with code. Client errors expose the cause text when
// exposeCause is set; otherwise the status text is used.
func newError(code int, cause error, exposeCause bool) *Error {
	msg := http.StatusText(code)
	if exposeCause && cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Message: msg, cause: cause}
}

func (e *Error) Error() string { return e.Message }
func (e *Error) HTTPCode() int { return e.Code }
func (e *Error) Cause() error  { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

func BadRequest(cause error) *Error { return newError(http.StatusBadRequest, cause, true) }
func NotFound(cause error) *Error   { return newError(http.StatusNotFound, cause, true) }
func Conflict(cause error) *Error   { return newError(http.StatusConflict, cause, true) }

// Unauthorized never tells the client why credentials were rejected
func Unauthorized(cause error) *Error { return newError(http.StatusUnauthorized, cause, false) }

// InternalServerError hides the cause behind the generic status text
func InternalServerError(cause error) *Error {
	return newError(http.StatusInternalServerError, cause, false)
}

// Wrap returns err as an API error. Errors that already are API errors pass through,
// anything else becomes an internal server error. Wrap(nil) is nil.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return InternalServerError(err)
}
