// file: internal/schema/errors.go
package schema

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorCode defines validation error codes.
type ErrorCode int

// Defined validation error codes.
const (
	ErrMissingField ErrorCode = iota + 1000
	ErrTypeMismatch
	ErrInvalidEnum
	ErrInvalidJSONFormat
	ErrSchemaCompileFailed
)

// Reason returns the short name of the violation, as exposed to clients.
func (c ErrorCode) Reason() string {
	switch c {
	case ErrMissingField:
		return "MissingField"
	case ErrTypeMismatch:
		return "TypeMismatch"
	case ErrInvalidEnum:
		return "InvalidEnum"
	case ErrInvalidJSONFormat:
		return "InvalidJSON"
	case ErrSchemaCompileFailed:
		return "SchemaCompileFailed"
	default:
		return "Unknown"
	}
}

// ValidationError represents a schema validation failure.
type ValidationError struct {
	// Code is the numeric error code.
	Code ErrorCode
	// Message is a human-readable error message.
	Message string
	// Cause is the underlying error, if any.
	Cause error
	// Path locates the offending value, rooted at "arguments" (e.g. arguments.files[2]).
	Path string
	// Context contains additional error context.
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	base := fmt.Sprintf("%s: %s", e.Code.Reason(), e.Message)
	if e.Path != "" {
		base += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Cause != nil {
		base += fmt.Sprintf(": %v", e.Cause)
	}
	return base
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the validation error.
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a new ValidationError at path.
func NewValidationError(code ErrorCode, path, message string, cause error) *ValidationError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &ValidationError{Code: code, Message: message, Cause: wrapped, Path: path}
}

// AsValidationError extracts a *ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
