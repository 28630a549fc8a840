// Package mcperror defines domain-specific error types and codes for the tool server.
// These errors carry more context than standard Go errors and map internal failures
// to JSON-RPC error responses or HTTP statuses.
package mcperror

// file: internal/mcperror/errors.go

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorCode defines domain-specific error codes.
type ErrorCode int

// JSON-RPC 2.0 standard codes.
const (
	ErrParseError     ErrorCode = -32700
	ErrInvalidRequest ErrorCode = -32600
	ErrMethodNotFound ErrorCode = -32601
	ErrInvalidParams  ErrorCode = -32602
	ErrInternalError  ErrorCode = -32603
)

// Internal codes that never appear on the wire as-is.
const (
	// ErrProtocol marks an envelope that cannot be answered with an RPC response.
	ErrProtocol ErrorCode = 4000 + iota
	// ErrToolNotFound maps to ErrMethodNotFound on the wire.
	ErrToolNotFound
	// ErrHandlerFailure maps to ErrInternalError on the wire.
	ErrHandlerFailure
	// ErrSessionNotFound is an HTTP 404 on the session transport.
	ErrSessionNotFound
	// ErrAuthMissing is an HTTP 401 on the session transport.
	ErrAuthMissing
	// ErrConfig is a fatal startup misconfiguration.
	ErrConfig
)

// BaseError is the common base for the typed errors in this package.
type BaseError struct {
	// Code categorizes the error (one of the constants above).
	Code ErrorCode
	// Message is a human-readable message, mostly for logs.
	Message string
	// Cause is the underlying error, if any.
	Cause error
	// Context holds key-value details (tool name, path, ...).
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("MCPError (Code: %d): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("MCPError (Code: %d): %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *BaseError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key-value pair to the error's context map.
func (e *BaseError) WithContext(key string, value interface{}) *BaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newBase(code ErrorCode, message string, cause error, context map[string]interface{}) *BaseError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &BaseError{Code: code, Message: message, Cause: wrapped, Context: context}
}

// NewProtocolError creates an error for an envelope with no usable id or malformed JSON.
func NewProtocolError(message string, cause error, context map[string]interface{}) *BaseError {
	return newBase(ErrProtocol, message, cause, context)
}

// NewInvalidRequestError creates an invalid request structure error (-32600).
func NewInvalidRequestError(message string, cause error, context map[string]interface{}) *BaseError {
	return newBase(ErrInvalidRequest, message, cause, context)
}

// NewMethodNotFoundError creates an error for an unknown RPC method (-32601).
func NewMethodNotFoundError(message string, cause error, context map[string]interface{}) *BaseError {
	return newBase(ErrMethodNotFound, message, cause, context)
}

// NewToolNotFoundError creates an error for an unregistered tool name.
func NewToolNotFoundError(toolName string) *BaseError {
	return newBase(ErrToolNotFound, fmt.Sprintf("tool '%s' not found", toolName), nil,
		map[string]interface{}{"toolName": toolName})
}

// NewInvalidParamsError creates an error for invalid parameters (-32602).
func NewInvalidParamsError(message string, cause error, context map[string]interface{}) *BaseError {
	return newBase(ErrInvalidParams, message, cause, context)
}

// NewHandlerFailureError wraps an error raised by a tool handler.
func NewHandlerFailureError(toolName string, cause error) *BaseError {
	msg := "tool handler failed"
	if cause != nil {
		msg = cause.Error()
	}
	return newBase(ErrHandlerFailure, msg, cause, map[string]interface{}{"toolName": toolName})
}

// NewInternalError creates a generic internal server error (-32603).
func NewInternalError(message string, cause error, context map[string]interface{}) *BaseError {
	return newBase(ErrInternalError, message, cause, context)
}

// NewSessionNotFoundError is returned by the session table for unknown ids.
func NewSessionNotFoundError(sessionID string) *BaseError {
	return newBase(ErrSessionNotFound, "session not found", nil, map[string]interface{}{"sessionId": sessionID})
}

// NewAuthMissingError is returned when a request carries no credential.
func NewAuthMissingError(header string) *BaseError {
	return newBase(ErrAuthMissing, "missing credential", nil, map[string]interface{}{"header": header})
}

// NewConfigError reports fatal startup misconfiguration such as duplicate tool names.
func NewConfigError(message string, cause error, context map[string]interface{}) *BaseError {
	return newBase(ErrConfig, message, cause, context)
}

// CodeOf returns the ErrorCode of err, or ErrInternalError when err is not a BaseError.
func CodeOf(err error) ErrorCode {
	var baseErr *BaseError
	if errors.As(err, &baseErr) {
		return baseErr.Code
	}
	return ErrInternalError
}

// IsProtocolError reports whether err can't be answered with an RPC envelope.
func IsProtocolError(err error) bool {
	return err != nil && CodeOf(err) == ErrProtocol
}
