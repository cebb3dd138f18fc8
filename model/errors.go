package model

import (
	"errors"
	"fmt"
)

// Error codes. They travel to the browser in ErrorEnvelope.Code and in
// Result.Code.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrSessionExpired     = "SESSION_EXPIRED"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendError       = "BACKEND_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Messages used when a constructor is given none.
var defaultMessages = map[string]string{
	ErrUnauthorized:       "Not authorized",
	ErrSessionExpired:     "Your session has expired. Please sign in again.",
	ErrInternalError:      "An unexpected error occurred",
	ErrBackendError:       "The school service rejected the request",
	ErrBackendUnavailable: "The school service is temporarily unavailable",
	ErrBackendTimeout:     "The school service did not respond in time",
}

// ErrorEnvelope is the error value every console layer passes around and
// the shape the browser receives under "error".
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status,omitempty"` // backend HTTP status, BACKEND_ERROR only
	Details []FieldError `json:"details,omitempty"`

	cause error
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEnvelope) Error() string {
	return e.Code + ": " + e.Text()
}

// Text returns Message, or the code's default message when it is empty.
func (e *ErrorEnvelope) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Code]
}

// Unwrap exposes the transport or decoding error behind the envelope.
func (e *ErrorEnvelope) Unwrap() error { return e.cause }

// Is matches any envelope with the same code, so callers can write
// errors.Is(err, &model.ErrorEnvelope{Code: model.ErrSessionExpired}).
func (e *ErrorEnvelope) Is(target error) bool {
	t, ok := target.(*ErrorEnvelope)
	return ok && t.Code == e.Code
}

// WithCause records the underlying error and returns e.
func (e *ErrorEnvelope) WithCause(err error) *ErrorEnvelope {
	e.cause = err
	return e
}

// NewError builds an envelope for code. An empty msg takes the code's
// default message.
func NewError(code, msg string) *ErrorEnvelope {
	if msg == "" {
		msg = defaultMessages[code]
	}
	return &ErrorEnvelope{Code: code, Message: msg}
}

// AsEnvelope finds the first *ErrorEnvelope in err's chain.
func AsEnvelope(err error) (*ErrorEnvelope, bool) {
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// CodeOf returns the envelope code in err's chain, or INTERNAL_ERROR.
func CodeOf(err error) string {
	if ee, ok := AsEnvelope(err); ok {
		return ee.Code
	}
	return ErrInternalError
}

func NewBadRequestError(msg string) *ErrorEnvelope { return NewError(ErrBadRequest, msg) }

func NewUnauthorizedError(msg string) *ErrorEnvelope { return NewError(ErrUnauthorized, msg) }

func NewSessionExpiredError() *ErrorEnvelope { return NewError(ErrSessionExpired, "") }

func NewNotFoundError(msg string) *ErrorEnvelope { return NewError(ErrNotFound, msg) }

func NewConflictError(msg string) *ErrorEnvelope { return NewError(ErrConflict, msg) }

// NewValidationError is raised before any network call is made.
func NewValidationError(msg string, details ...FieldError) *ErrorEnvelope {
	e := NewError(ErrValidationError, msg)
	e.Details = details
	return e
}

func NewInternalError() *ErrorEnvelope { return NewError(ErrInternalError, "") }

// NewBackendError keeps the backend status and the message taken from its
// response body. Without one, Message stays empty so the failing operation
// can show its own message.
func NewBackendError(status int, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBackendError, Message: msg, Status: status}
}

func NewBackendUnavailableError() *ErrorEnvelope { return NewError(ErrBackendUnavailable, "") }

func NewBackendTimeoutError() *ErrorEnvelope { return NewError(ErrBackendTimeout, "") }

// Errorf is NewError with a formatted message.
func Errorf(code, format string, args ...any) *ErrorEnvelope {
	return NewError(code, fmt.Sprintf(format, args...))
}
