// internal/logging/logger_test.go
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogger(t *testing.T) {
	logger := GetLogger("test")
	require.NotNil(t, logger, "GetLogger returned nil")
}

func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LevelDebug, &buf)

	logger := GetLogger("test_component")
	logger.Info("test message", "key1", "value1", "key2", 123)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Failed to parse log entry.")

	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "test_component", logEntry["component"])
	assert.Equal(t, "value1", logEntry["key1"])
	assert.EqualValues(t, 123, logEntry["key2"])
}

func TestWithContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LevelDebug, &buf)

	ctx := ContextWithRequestID(context.Background(), "req-7")
	GetLogger("ctx").WithContext(ctx).Info("with request")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "req-7", logEntry["requestID"])
}

func TestIsDebugEnabled(t *testing.T) {
	SetLevel(LevelInfo)
	assert.False(t, IsDebugEnabled(), "IsDebugEnabled should return false when level is INFO")

	SetLevel(LevelDebug)
	assert.True(t, IsDebugEnabled(), "IsDebugEnabled should return true when level is DEBUG")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestNoopLogger_IgnoresEverything(t *testing.T) {
	l := GetNoopLogger()
	assert.Equal(t, l, l.WithField("a", 1))
	assert.NotPanics(t, func() {
		l.WithField("k", "v").WithContext(context.Background()).Error("dropped", "k", 1)
	})
}

func TestSetDefaultLogger_NilIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LevelInfo, &buf)
	SetDefaultLogger(nil)

	GetLogger("still").Info("kept")
	assert.Contains(t, buf.String(), `"component":"still"`)
}
