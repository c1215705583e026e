package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest            = "BAD_REQUEST"
	ErrUnauthorized          = "UNAUTHORIZED"
	ErrForbidden             = "FORBIDDEN"
	ErrNotFound              = "NOT_FOUND"
	ErrConflict              = "CONFLICT"
	ErrValidationError       = "VALIDATION_ERROR"
	ErrInternalError         = "INTERNAL_ERROR"
	ErrCacheUnavailable      = "CACHE_UNAVAILABLE"
	ErrInvalidConfiguration  = "INVALID_CONFIGURATION"
	ErrUnsupportedExpression = "UNSUPPORTED_EXPRESSION"
	ErrLogic                 = "LOGIC_ERROR"
)

// ErrorEnvelope is the standard error value returned by the service and
// rendered by the transport layer. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an envelope carrying the same code, so callers
// can match with errors.Is(err, &ErrorEnvelope{Code: ErrNotFound}).
func (e *ErrorEnvelope) Is(target error) bool {
	t, ok := target.(*ErrorEnvelope)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the envelope code carried anywhere in err's chain, or an
// empty string.
func CodeOf(err error) string {
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidConfigurationError returns an INVALID_CONFIGURATION error. It is
// raised when a processing context or a reader lacks a field it requires.
func NewInvalidConfigurationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidConfiguration, Message: msg}
}

// NewUnsupportedExpressionError returns an UNSUPPORTED_EXPRESSION error.
func NewUnsupportedExpressionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnsupportedExpression, Message: msg}
}

// NewLogicError returns a LOGIC_ERROR, used for programmer errors such as
// reading from an unconfigured reader.
func NewLogicError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrLogic, Message: msg}
}

// NewCacheUnavailableError returns a CACHE_UNAVAILABLE error.
func NewCacheUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCacheUnavailable,
		Message: "The configuration cache is temporarily unavailable",
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}
