package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how the HTTP edge reports them.
type Kind string

const (
	Invalid         Kind = "invalid"
	NotFound        Kind = "not_found"
	Unauthorized    Kind = "unauthorized"
	Forbidden       Kind = "forbidden"
	Conflict        Kind = "conflict"
	TooManyRequests Kind = "too_many_requests"
	BadGateway      Kind = "bad_gateway"
	Internal        Kind = "internal"
)

// Error is a domain error with a stable machine code and a message that is
// safe to show to clients.
type Error struct {
	Kind      Kind
	Code      string
	PublicMsg string
	Fields    map[string]string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.PublicMsg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.PublicMsg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so specialised copies (see Wrapf) still satisfy
// errors.Is against the package sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New declares a sentinel.
func New(kind Kind, code, publicMsg string) *Error {
	return &Error{Kind: kind, Code: code, PublicMsg: publicMsg}
}

// Wrapf returns a copy of sentinel with a more specific public message.
func Wrapf(sentinel *Error, format string, args ...any) *Error {
	cp := *sentinel
	cp.PublicMsg = fmt.Sprintf(format, args...)
	return &cp
}

// WithCause returns a copy of sentinel that wraps an internal cause.
func WithCause(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	return &cp
}

// Validation builds a VALIDATION_ERROR carrying per-field messages.
func Validation(publicMsg string, fields map[string]string) *Error {
	return &Error{Kind: Invalid, Code: CodeValidation, PublicMsg: publicMsg, Fields: fields}
}

// CodeValidation is the code for malformed input.
const CodeValidation = "VALIDATION_ERROR"

// ErrValidation is the sentinel for malformed input.
var ErrValidation = New(Invalid, CodeValidation, "invalid request")

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Invalid:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case TooManyRequests:
		return http.StatusTooManyRequests
	case BadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine code for err, or INTERNAL for unknown errors.
func Code(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return "INTERNAL"
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return "unexpected error"
}
