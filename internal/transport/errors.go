package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies a failed oracle call.
type ErrorType string

const (
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuth         ErrorType = "auth_error"
	ErrorTypeBadRequest   ErrorType = "bad_request"
	ErrorTypeInvalidImage ErrorType = "invalid_image"
	ErrorTypeSafetyBlock  ErrorType = "safety_block"
	ErrorTypeServer       ErrorType = "server_error"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// ParseErrorType maps the wire errorType string onto a known type. Unknown
// strings map to ErrorTypeUnknown.
func ParseErrorType(raw string) ErrorType {
	switch t := ErrorType(raw); t {
	case ErrorTypeRateLimit, ErrorTypeAuth, ErrorTypeBadRequest, ErrorTypeInvalidImage,
		ErrorTypeSafetyBlock, ErrorTypeServer:
		return t
	default:
		return ErrorTypeUnknown
	}
}

// ClassifiedError is the only error type returned by Client.Send and Retry
// for oracle failures.
type ClassifiedError struct {
	Type       ErrorType `json:"type"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message"`
	// Network is set when the call failed before any status code was received.
	Network bool  `json:"network,omitempty"`
	Cause   error `json:"-"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another physical attempt may succeed.
func (e *ClassifiedError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.Network {
		return true
	}
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServer:
		return true
	case ErrorTypeUnknown:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// NewClassifiedError builds an error of the given type.
func NewClassifiedError(t ErrorType, status int, message string, cause error) *ClassifiedError {
	return &ClassifiedError{Type: t, StatusCode: status, Message: message, Cause: cause}
}

// NewNetworkError wraps a failure that happened before a response arrived.
func NewNetworkError(cause error) *ClassifiedError {
	return &ClassifiedError{Type: ErrorTypeUnknown, Message: cause.Error(), Network: true, Cause: cause}
}

// AsClassified extracts a ClassifiedError from err.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsType checks if err is a ClassifiedError of the given type.
func IsType(err error, t ErrorType) bool {
	ce, ok := AsClassified(err)
	return ok && ce.Type == t
}

// TypeOf returns the classification of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	if ce, ok := AsClassified(err); ok {
		return ce.Type
	}
	return ErrorTypeUnknown
}

// IsTerminal reports whether err is a classification that must not be retried.
func IsTerminal(err error) bool {
	ce, ok := AsClassified(err)
	return ok && !ce.Retryable()
}
