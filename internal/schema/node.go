// Package schema describes tool parameter shapes as SchemaNode trees, validates raw
// call arguments against them, and renders them as JSON Schema for tool listings.
package schema

// file: internal/schema/node.go

// Kind is the JSON kind a Node accepts.
type Kind string

// Supported node kinds.
const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Field is a named child of an object node. Fields keep declaration order,
// which fixes the order validation checks them in.
type Field struct {
	Name string
	Node *Node
}

// Node is one level of a parameter schema.
type Node struct {
	Kind        Kind
	Description string
	// IsOptional fields may be absent; required is the default.
	IsOptional bool
	// Default is applied when an optional field is absent.
	Default any
	// Enum restricts leaf values when non-empty.
	Enum []any
	// Items is the element schema of an array node.
	Items *Node
	// Fields are the properties of an object node.
	Fields []Field
}

// String returns a required string node.
func String() *Node { return &Node{Kind: KindString} }

// Number returns a required number node.
func Number() *Node { return &Node{Kind: KindNumber} }

// Integer returns a required integer node. Values must be whole numbers.
func Integer() *Node { return &Node{Kind: KindInteger} }

// Boolean returns a required boolean node.
func Boolean() *Node { return &Node{Kind: KindBoolean} }

// Array returns a required array node whose elements match item.
func Array(item *Node) *Node { return &Node{Kind: KindArray, Items: item} }

// Object returns a required object node with the given fields in order.
func Object(fields ...Field) *Node { return &Node{Kind: KindObject, Fields: fields} }

// Prop pairs a field name with its node, for use with Object.
func Prop(name string, node *Node) Field { return Field{Name: name, Node: node} }

// Optional marks the node as optional and returns it.
func (n *Node) Optional() *Node {
	n.IsOptional = true
	return n
}

// WithDefault marks the node optional with a default value.
func (n *Node) WithDefault(v any) *Node {
	n.IsOptional = true
	n.Default = v
	return n
}

// WithEnum restricts the node to the given values.
func (n *Node) WithEnum(values ...any) *Node {
	n.Enum = append(n.Enum[:0:0], values...)
	return n
}

// Describe sets the node description shown to clients.
func (n *Node) Describe(s string) *Node {
	n.Description = s
	return n
}

// Field returns the child node with the given name, or nil.
func (n *Node) Field(name string) *Node {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Node
		}
	}
	return nil
}

// JSONSchema renders the node as a JSON Schema document fragment.
// The result is a fresh map and may be mutated by the caller.
func (n *Node) JSONSchema() map[string]any {
	if n == nil {
		return map[string]any{}
	}
	out := map[string]any{"type": string(n.Kind)}
	if n.Description != "" {
		out["description"] = n.Description
	}
	if len(n.Enum) > 0 {
		out["enum"] = append([]any(nil), n.Enum...)
	}
	if n.Default != nil {
		out["default"] = n.Default
	}
	switch n.Kind {
	case KindArray:
		if n.Items != nil {
			out["items"] = n.Items.JSONSchema()
		}
	case KindObject:
		props := make(map[string]any, len(n.Fields))
		required := make([]string, 0, len(n.Fields))
		for _, f := range n.Fields {
			props[f.Name] = f.Node.JSONSchema()
			if !f.Node.IsOptional {
				required = append(required, f.Name)
			}
		}
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	}
	return out
}
