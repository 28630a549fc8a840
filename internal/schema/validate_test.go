package schema

// file: internal/schema/validate_test.go

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func screenshotSchema() *Node {
	return Object(
		Prop("url", String().Describe("Page to capture.")),
		Prop("fullPathToScreenshot", String().Optional()),
	)
}

func requireValidationError(t *testing.T, err error, code ErrorCode, path string) *ValidationError {
	t.Helper()
	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	assert.Equal(t, code, ve.Code, "unexpected code: %v", ve)
	assert.Equal(t, path, ve.Path)
	return ve
}

func TestValidate_AcceptsValidArguments(t *testing.T) {
	args, err := Validate(screenshotSchema(), json.RawMessage(`{"url":"https://example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", args.String("url"))
	assert.False(t, args.Has("fullPathToScreenshot"))
}

func TestValidate_MissingRequiredField(t *testing.T) {
	_, err := Validate(screenshotSchema(), json.RawMessage(`{}`))
	requireValidationError(t, err, ErrMissingField, "arguments.url")
}

func TestValidate_TypeMismatch(t *testing.T) {
	_, err := Validate(screenshotSchema(), json.RawMessage(`{"url":42}`))
	ve := requireValidationError(t, err, ErrTypeMismatch, "arguments.url")
	assert.Contains(t, ve.Message, "expected string, got integer")
}

func TestValidate_NullArgumentsTreatedAsEmptyObject(t *testing.T) {
	node := Object(Prop("verbose", Boolean().WithDefault(false)))
	for _, raw := range []string{"", "null", "  "} {
		args, err := Validate(node, json.RawMessage(raw))
		require.NoError(t, err, "raw=%q", raw)
		assert.Equal(t, false, args["verbose"])
	}
}

func TestValidate_RootMustBeObject(t *testing.T) {
	_, err := Validate(screenshotSchema(), json.RawMessage(`["a"]`))
	requireValidationError(t, err, ErrTypeMismatch, "arguments")
}

func TestValidate_InvalidJSON(t *testing.T) {
	_, err := Validate(screenshotSchema(), json.RawMessage(`{"url":`))
	requireValidationError(t, err, ErrInvalidJSONFormat, "arguments")
}

func TestValidate_FailsFastInDeclarationOrder(t *testing.T) {
	node := Object(
		Prop("first", String()),
		Prop("second", Integer()),
	)
	// Both fields are wrong; the first declared one is reported, regardless of JSON key order.
	_, err := Validate(node, json.RawMessage(`{"second":"x","first":1}`))
	requireValidationError(t, err, ErrTypeMismatch, "arguments.first")

	_, err = Validate(node, json.RawMessage(`{"second":"x"}`))
	requireValidationError(t, err, ErrMissingField, "arguments.first")
}

func TestValidate_Enum(t *testing.T) {
	node := Object(
		Prop("format", String().WithEnum("png", "jpeg")),
		Prop("quality", Integer().WithEnum(50, 100).Optional()),
	)

	_, err := Validate(node, json.RawMessage(`{"format":"gif"}`))
	requireValidationError(t, err, ErrInvalidEnum, "arguments.format")

	args, err := Validate(node, json.RawMessage(`{"format":"png","quality":100}`))
	require.NoError(t, err)
	assert.Equal(t, 100, args.Int("quality"))

	_, err = Validate(node, json.RawMessage(`{"format":"png","quality":75}`))
	requireValidationError(t, err, ErrInvalidEnum, "arguments.quality")
}

func TestValidate_DefaultsApplied(t *testing.T) {
	node := Object(
		Prop("url", String()),
		Prop("width", Integer().WithDefault(1280)),
		Prop("mode", String().WithDefault("full")),
	)
	args, err := Validate(node, json.RawMessage(`{"url":"u","mode":null}`))
	require.NoError(t, err)
	assert.Equal(t, 1280, args.Int("width"))
	assert.Equal(t, "full", args.String("mode"))
}

func TestValidate_IntegerRequiresWholeNumber(t *testing.T) {
	node := Object(Prop("n", Integer()))

	args, err := Validate(node, json.RawMessage(`{"n":2.0}`))
	require.NoError(t, err)
	assert.Equal(t, 2, args.Int("n"))

	_, err = Validate(node, json.RawMessage(`{"n":2.5}`))
	requireValidationError(t, err, ErrTypeMismatch, "arguments.n")
}

func TestValidate_NestedPaths(t *testing.T) {
	node := Object(
		Prop("files", Array(String())),
		Prop("opts", Object(Prop("mode", String().WithEnum("fast", "slow")))),
	)

	_, err := Validate(node, json.RawMessage(`{"files":["a","b",3],"opts":{"mode":"fast"}}`))
	requireValidationError(t, err, ErrTypeMismatch, "arguments.files[2]")

	_, err = Validate(node, json.RawMessage(`{"files":[],"opts":{"mode":"medium"}}`))
	requireValidationError(t, err, ErrInvalidEnum, "arguments.opts.mode")

	_, err = Validate(node, json.RawMessage(`{"files":[],"opts":{}}`))
	requireValidationError(t, err, ErrMissingField, "arguments.opts.mode")
}

func TestValidate_UnknownFieldsDropped(t *testing.T) {
	args, err := Validate(screenshotSchema(), json.RawMessage(`{"url":"u","extra":true}`))
	require.NoError(t, err)
	assert.False(t, args.Has("extra"))
}

func TestValidate_IsSideEffectFree(t *testing.T) {
	node := Object(Prop("tags", Array(String()).WithDefault([]any{"a"})))
	before := node.JSONSchema()

	_, err := Validate(node, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = Validate(node, json.RawMessage(`{"tags":["x"]}`))
	require.NoError(t, err)

	assert.Equal(t, before, node.JSONSchema())
}

func TestValidate_ContainerDefaultsAreCopied(t *testing.T) {
	node := Object(
		Prop("tags", Array(String()).WithDefault([]any{"a"})),
		Prop("viewport", Object(Prop("width", Integer())).WithDefault(map[string]any{"width": 800})),
	)

	first, err := Validate(node, json.RawMessage(`{}`))
	require.NoError(t, err)
	first.Slice("tags")[0] = "mutated"
	first.Object("viewport")["width"] = 1

	second, err := Validate(node, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, second.Slice("tags"))
	assert.Equal(t, 800, second.Object("viewport").Int("width"))
	assert.Equal(t, []any{"a"}, node.Fields[0].Node.Default)
}

func TestValidate_NonObjectSchemaRejected(t *testing.T) {
	_, err := Validate(String(), json.RawMessage(`{}`))
	requireValidationError(t, err, ErrSchemaCompileFailed, "arguments")
}
