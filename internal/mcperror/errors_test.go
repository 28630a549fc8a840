package mcperror

// file: internal/mcperror/errors_test.go

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestMapToJSONRPC_ToolNotFound_UsesMethodNotFoundCode(t *testing.T) {
	code, msg, data := MapToJSONRPC(NewToolNotFoundError("nope"))
	assert.Equal(t, -32601, code)
	assert.Equal(t, "Tool not found.", msg)
	assert.Equal(t, "nope", data["toolName"])
}

func TestMapToJSONRPC_InvalidParams_ExposesOnlySafeContext(t *testing.T) {
	err := NewInvalidParamsError("bad", nil, map[string]interface{}{
		"path":   "arguments.url",
		"reason": "MissingField",
		"secret": "do-not-leak",
	})
	code, msg, data := MapToJSONRPC(err)
	assert.Equal(t, -32602, code)
	assert.Equal(t, "Invalid params.", msg)
	assert.Equal(t, "arguments.url", data["path"])
	assert.Equal(t, "MissingField", data["reason"])
	assert.NotContains(t, data, "secret")
}

func TestMapToJSONRPC_HandlerFailure_CarriesDetail(t *testing.T) {
	code, _, data := MapToJSONRPC(NewHandlerFailureError("screenshot", errors.New("browser crashed")))
	assert.Equal(t, -32603, code)
	assert.Equal(t, "browser crashed", data["detail"])
}

func TestMapToJSONRPC_PlainError_IsInternal(t *testing.T) {
	code, _, data := MapToJSONRPC(errors.New("boom"))
	assert.Equal(t, -32603, code)
	assert.Equal(t, "boom", data["detail"])
}

func TestCodeOf_SeesThroughWrapping(t *testing.T) {
	err := errors.Wrap(NewSessionNotFoundError("abc"), "lookup")
	assert.Equal(t, ErrSessionNotFound, CodeOf(err))
	assert.False(t, IsProtocolError(err))
	assert.True(t, IsProtocolError(errors.Wrap(NewProtocolError("x", nil, nil), "read")))
}
