package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code categorizes remote failures.
type Code string

const (
	// CodeUnavailable indicates the remote could not be reached.
	CodeUnavailable Code = "UNAVAILABLE"

	// CodeTimeout indicates the call did not finish in time.
	CodeTimeout Code = "TIMEOUT"

	// CodeServer indicates the remote failed internally (5xx).
	CodeServer Code = "SERVER"

	// CodeInvalid indicates the remote rejected the input.
	CodeInvalid Code = "INVALID"

	// CodeForbidden indicates the caller may not perform the operation.
	CodeForbidden Code = "FORBIDDEN"

	// CodeNotFound indicates a referenced entity does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict indicates the write conflicts with remote state.
	CodeConflict Code = "CONFLICT"
)

// Permanent reports whether retrying a call that failed with c can never
// succeed.
func (c Code) Permanent() bool {
	switch c {
	case CodeInvalid, CodeForbidden, CodeNotFound, CodeConflict:
		return true
	}
	return false
}

// HTTPStatus maps the code onto the status the server responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalid:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// codeForStatus maps an HTTP status onto a Code.
func codeForStatus(status int) Code {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CodeInvalid
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests:
		return CodeUnavailable
	case status >= 400 && status < 500:
		return CodeInvalid
	}
	return CodeServer
}

// Error is a failed remote call.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the remote operation, e.g. "create session".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether the failure is a permanent rejection.
func (e *Error) Permanent() bool {
	return e.Code.Permanent()
}

// NewError creates an *Error.
func NewError(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// WrapError wraps a cause in an *Error.
func WrapError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code of err. Errors that are not *Error report
// CodeTimeout for deadline expiry and CodeUnavailable otherwise.
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnavailable
}

// IsPermanent returns true if err is a permanent rejection.
// Uses errors.As to handle wrapped errors.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err).Permanent()
}

// IsTransient returns true if err is a failure worth retrying later.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
