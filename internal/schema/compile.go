// file: internal/schema/compile.go
package schema

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const compileResourceID = "toolrelay://parameters.json"

// Compile renders node as JSON Schema and compiles it with the Draft 2020-12
// meta-schema, returning the compiled schema. A failure means the node tree
// would be advertised to clients as an invalid inputSchema.
func Compile(node *Node) (*jsonschema.Schema, error) {
	if node == nil {
		return nil, NewValidationError(ErrSchemaCompileFailed, "", "schema is nil", nil)
	}
	doc := node.JSONSchema()
	doc["$schema"] = "https://json-schema.org/draft/2020-12/schema"

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, NewValidationError(ErrSchemaCompileFailed, "", "failed to render schema", errors.Wrap(err, "json.Marshal failed"))
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(compileResourceID, bytes.NewReader(data)); err != nil {
		return nil, NewValidationError(ErrSchemaCompileFailed, "", "failed to add schema resource", errors.Wrap(err, "compiler.AddResource failed")).
			WithContext("schemaSize", len(data))
	}
	compiled, err := compiler.Compile(compileResourceID)
	if err != nil {
		return nil, NewValidationError(ErrSchemaCompileFailed, "", "failed to compile schema", errors.Wrap(err, "compiler.Compile failed"))
	}
	return compiled, nil
}
