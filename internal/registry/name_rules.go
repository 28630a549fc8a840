// file: internal/registry/name_rules.go
package registry

import (
	"regexp"

	"github.com/cockroachdb/errors"
)

// NameRule constrains tool names to what MCP clients display and route reliably.
type NameRule struct {
	Pattern     *regexp.Regexp
	Description string
	MaxLength   int
}

// ToolNameRule is applied to every registered tool.
var ToolNameRule = NameRule{
	// Lower camelCase: screenshot, codeReview.
	Pattern:     regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`),
	Description: "must start with a lowercase letter, followed by alphanumeric characters only",
	MaxLength:   64,
}

// ValidateName checks name against the rule.
func (r NameRule) ValidateName(name string) error {
	if name == "" {
		return errors.New("empty tool name is not allowed")
	}
	if len(name) > r.MaxLength {
		return errors.Newf("tool name exceeds maximum length of %d characters", r.MaxLength)
	}
	if !r.Pattern.MatchString(name) {
		return errors.Newf("invalid tool name '%s': %s", name, r.Description)
	}
	return nil
}
