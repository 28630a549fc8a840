package transport

// file: internal/transport/transport_errors.go

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrorCode identifies a transport failure.
type ErrorCode int

// Transport error codes.
const (
	ErrGeneric ErrorCode = iota + 1000
	// ErrInvalidMessage indicates a message violated framing rules.
	ErrInvalidMessage
	ErrMessageTooLarge
	ErrTransportClosed
	ErrReadTimeout
	ErrWriteTimeout
)

// ErrorType groups transport errors for callers that branch on category.
type ErrorType int

// Transport error types.
const (
	ErrorTypeGeneric ErrorType = iota
	ErrorTypeMessageSize
	ErrorTypeTimeout
	ErrorTypeClosed
)

// Error is a transport-level failure.
type Error struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}

	// Size and MaxSize are set for message size errors.
	Size    int
	MaxSize int
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := fmt.Sprintf("TransportError [%d] %s", e.Code, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a key-value pair to the error's context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches transport errors by type and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// NewError creates a generic transport error; cause gains a stack trace.
func NewError(code ErrorCode, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Type: ErrorTypeGeneric, Code: code, Message: message, Cause: wrapped}
}

// NewMessageSizeError reports a message larger than maxSize. fragment is a short prefix for logs.
func NewMessageSizeError(size, maxSize int, fragment []byte) *Error {
	err := NewError(ErrMessageTooLarge,
		fmt.Sprintf("message size %d exceeds maximum allowed size %d", size, maxSize), nil)
	err.Type = ErrorTypeMessageSize
	err.Size = size
	err.MaxSize = maxSize
	if len(fragment) > 0 {
		err = err.WithContext("messagePreview", string(fragment))
	}
	return err
}

// NewTimeoutError reports a read or write abandoned because its context ended.
func NewTimeoutError(operation string, cause error) *Error {
	code := ErrReadTimeout
	if operation == "write" {
		code = ErrWriteTimeout
	}
	err := NewError(code, fmt.Sprintf("%s operation timed out", operation), cause)
	err.Type = ErrorTypeTimeout
	return err.WithContext("operation", operation)
}

// NewClosedError reports an operation on a closed transport.
func NewClosedError(operation string) *Error {
	err := NewError(ErrTransportClosed, fmt.Sprintf("cannot perform %s on closed transport", operation), nil)
	err.Type = ErrorTypeClosed
	return err.WithContext("operation", operation)
}

// IsClosedError reports whether err means the stream is gone: a closed transport,
// a peer hang-up, or io.EOF.
func IsClosedError(err error) bool {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		if transportErr.Type == ErrorTypeClosed || transportErr.Code == ErrTransportClosed {
			return true
		}
	}
	return errors.Is(err, io.EOF)
}

// IsMessageSizeError reports whether err is an oversized-message error.
func IsMessageSizeError(err error) bool {
	var transportErr *Error
	return errors.As(err, &transportErr) && transportErr.Type == ErrorTypeMessageSize
}

// IsTimeoutError reports whether err came from a context ending mid-operation.
func IsTimeoutError(err error) bool {
	var transportErr *Error
	return errors.As(err, &transportErr) && transportErr.Type == ErrorTypeTimeout
}
