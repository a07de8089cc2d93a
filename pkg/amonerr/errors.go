// Package amonerr defines the error kinds shared by every Amon tier.
//
// Handlers and adapters construct errors with the typed constructors below;
// the HTTP layer turns them into the wire form {code, message} with the
// matching status code. Anything that is not an *Error surfaces as
// InternalError so internals never leak to callers.
package amonerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Codes, as they appear in response bodies.
const (
	CodeMissingParameter = "MissingParameter"
	CodeInvalidArgument  = "InvalidArgument"
	CodeResourceNotFound = "ResourceNotFound"
	CodeAlreadyExists    = "AlreadyExists"
	CodeConstraint       = "Constraint"
	CodeUnavailable      = "Unavailable"
	CodeInternalError    = "InternalError"
)

var statusByCode = map[string]int{
	CodeMissingParameter: http.StatusConflict,
	CodeInvalidArgument:  http.StatusConflict,
	CodeResourceNotFound: http.StatusNotFound,
	CodeAlreadyExists:    http.StatusConflict,
	CodeConstraint:       http.StatusConflict,
	CodeUnavailable:      http.StatusServiceUnavailable,
	CodeInternalError:    http.StatusInternalServerError,
}

// Error is a kind-carrying error. Code and Message are the public wire
// fields; the cause, if any, stays server-side.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.cause.Error())
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the response status for the error's code.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithCause attaches a server-side cause without changing the wire form.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: err}
}

func newError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func MissingParameter(format string, args ...interface{}) *Error {
	return newError(CodeMissingParameter, format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return newError(CodeInvalidArgument, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(CodeResourceNotFound, format, args...)
}

func AlreadyExists(format string, args ...interface{}) *Error {
	return newError(CodeAlreadyExists, format, args...)
}

func Constraint(format string, args ...interface{}) *Error {
	return newError(CodeConstraint, format, args...)
}

func Unavailable(format string, args ...interface{}) *Error {
	return newError(CodeUnavailable, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return newError(CodeInternalError, format, args...)
}

func is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func IsMissingParameter(err error) bool { return is(err, CodeMissingParameter) }
func IsInvalidArgument(err error) bool  { return is(err, CodeInvalidArgument) }
func IsNotFound(err error) bool         { return is(err, CodeResourceNotFound) }
func IsAlreadyExists(err error) bool    { return is(err, CodeAlreadyExists) }
func IsConstraint(err error) bool       { return is(err, CodeConstraint) }
func IsUnavailable(err error) bool      { return is(err, CodeUnavailable) }

// WriteHTTP writes err as the wire form {code, message}. Errors without a
// kind become InternalError with a generic message.
func WriteHTTP(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal("internal error")
	}
	body, merr := json.Marshal(e)
	if merr != nil {
		body = []byte(`{"code":"InternalError","message":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_, _ = w.Write(body)
}
