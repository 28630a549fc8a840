// file: internal/schema/validate.go
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// RootPath prefixes every reported path.
const RootPath = "arguments"

// Validate checks raw call arguments against an object node and returns the
// validated arguments with defaults applied. Fields are checked in declaration
// order and the first violation is returned. Unknown fields are dropped.
// An empty or null payload is treated as an empty object.
func Validate(node *Node, raw json.RawMessage) (Args, error) {
	if node == nil || node.Kind != KindObject {
		return nil, NewValidationError(ErrSchemaCompileFailed, RootPath, "parameter schema root must be an object", nil)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, NewValidationError(ErrInvalidJSONFormat, RootPath, "arguments are not valid JSON", errors.Wrap(err, "decode arguments"))
	}

	out, err := validateNode(node, value, RootPath)
	if err != nil {
		return nil, err
	}
	return Args(out.(map[string]any)), nil
}

func validateNode(n *Node, value any, path string) (any, error) {
	var (
		out any
		err error
	)
	switch n.Kind {
	case KindObject:
		out, err = validateObject(n, value, path)
	case KindArray:
		out, err = validateArray(n, value, path)
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, mismatch(n, value, path)
		}
		out = s
	case KindBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, mismatch(n, value, path)
		}
		out = b
	case KindNumber:
		num, ok := value.(json.Number)
		if !ok {
			return nil, mismatch(n, value, path)
		}
		f, convErr := num.Float64()
		if convErr != nil {
			return nil, mismatch(n, value, path)
		}
		out = f
	case KindInteger:
		i, ok := toInteger(value)
		if !ok {
			return nil, mismatch(n, value, path)
		}
		out = i
	default:
		return nil, NewValidationError(ErrSchemaCompileFailed, path, fmt.Sprintf("unsupported schema kind %q", n.Kind), nil)
	}
	if err != nil {
		return nil, err
	}

	if len(n.Enum) > 0 && !inEnum(n.Enum, out) {
		return nil, NewValidationError(ErrInvalidEnum, path,
			fmt.Sprintf("value %v is not one of %v", out, n.Enum), nil).
			WithContext("allowed", n.Enum)
	}
	return out, nil
}

func validateObject(n *Node, value any, path string) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, mismatch(n, value, path)
	}
	out := make(map[string]any, len(n.Fields))
	for _, f := range n.Fields {
		fieldPath := path + "." + f.Name
		v, present := obj[f.Name]
		if present && v == nil && f.Node.IsOptional {
			present = false
		}
		if !present {
			if !f.Node.IsOptional {
				return nil, NewValidationError(ErrMissingField, fieldPath,
					fmt.Sprintf("required field %q is missing", f.Name), nil)
			}
			if f.Node.Default != nil {
				out[f.Name] = cloneDefault(f.Node.Default)
			}
			continue
		}
		checked, err := validateNode(f.Node, v, fieldPath)
		if err != nil {
			return nil, err
		}
		out[f.Name] = checked
	}
	return out, nil
}

// cloneDefault copies container defaults so callers never share the schema's value.
func cloneDefault(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneDefault(e)
		}
		return out
	case Args:
		return Args(cloneDefault(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneDefault(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func validateArray(n *Node, value any, path string) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, mismatch(n, value, path)
	}
	if n.Items == nil {
		return items, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		checked, err := validateNode(n.Items, item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = checked
	}
	return out, nil
}

func mismatch(n *Node, value any, path string) error {
	return NewValidationError(ErrTypeMismatch, path,
		fmt.Sprintf("expected %s, got %s", n.Kind, jsonKind(value)), nil)
}

func toInteger(value any) (int64, bool) {
	num, ok := value.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := num.Int64(); err == nil {
		return i, true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// jsonKind names the JSON kind of a decoded value for error messages.
func jsonKind(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func inEnum(allowed []any, v any) bool {
	for _, a := range allowed {
		if scalarEqual(a, v) {
			return true
		}
	}
	return false
}

// scalarEqual compares enum members with validated values, treating all numeric types alike.
func scalarEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Args holds validated call arguments keyed by field name.
type Args map[string]any

// Has reports whether key is present (given or defaulted).
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the string at key, or "" when absent.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Bool returns the boolean at key, or false when absent.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Number returns the number at key as float64, or 0 when absent.
func (a Args) Number(key string) float64 {
	f, _ := toFloat(a[key])
	return f
}

// Int returns the integer at key, or 0 when absent.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		f, _ := toFloat(v)
		return int(f)
	}
}

// Slice returns the array at key, or nil when absent.
func (a Args) Slice(key string) []any {
	s, _ := a[key].([]any)
	return s
}

// Object returns the nested object at key, or nil when absent.
func (a Args) Object(key string) Args {
	m, _ := a[key].(map[string]any)
	return Args(m)
}
