package mcperror

// file: internal/mcperror/mapping.go

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// safeContextKeys lists the context entries that may be exposed to clients in error.data.
var safeContextKeys = map[string]struct{}{
	"toolName": {},
	"method":   {},
	"path":     {},
	"reason":   {},
}

// MapToJSONRPC translates an error into JSON-RPC error components.
// The message is stable per code so clients can branch on it.
func MapToJSONRPC(err error) (code int, message string, data map[string]interface{}) {
	data = make(map[string]interface{})

	var baseErr *BaseError
	if !errors.As(err, &baseErr) {
		data["detail"] = err.Error()
		data["goErrorType"] = fmt.Sprintf("%T", err)
		return int(ErrInternalError), "Internal error.", data
	}

	switch baseErr.Code {
	case ErrParseError, ErrProtocol:
		code = int(ErrParseError)
		message = "Parse error."
	case ErrInvalidRequest:
		code = int(ErrInvalidRequest)
		message = "Invalid Request."
	case ErrMethodNotFound:
		code = int(ErrMethodNotFound)
		message = "Method not found."
	case ErrToolNotFound:
		code = int(ErrMethodNotFound)
		message = "Tool not found."
	case ErrInvalidParams:
		code = int(ErrInvalidParams)
		message = "Invalid params."
	case ErrHandlerFailure, ErrInternalError:
		code = int(ErrInternalError)
		message = "Internal error."
	default:
		code = int(ErrInternalError)
		message = "An unspecified internal error occurred."
		data["internalCode"] = int(baseErr.Code)
	}
	data["detail"] = baseErr.Message

	for k, v := range baseErr.Context {
		if _, ok := safeContextKeys[k]; !ok {
			continue
		}
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}

	return code, message, data
}
