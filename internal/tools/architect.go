package tools

// file: internal/tools/architect.go

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/schema"
)

const architectSystemPrompt = `You are an expert software architect. Given a task and the relevant code,
produce a concise step-by-step plan for the change. Name the files and functions to touch,
call out risks, and do not write the full implementation.`

func architectTool(deps Deps) registry.Entry {
	return registry.Entry{
		Descriptor: registry.Descriptor{
			Name:        NameArchitect,
			Description: "Plan a code change: given a task and the relevant code, return step-by-step instructions.",
			ParameterSchema: schema.Object(
				schema.Prop("task", schema.String().Describe("What should be built or changed.")),
				schema.Prop("code", schema.String().Describe("The code the change applies to.")),
			),
		},
		Handler: func(ctx context.Context, args schema.Args) (*registry.Result, error) {
			var prompt strings.Builder
			prompt.WriteString("Task:\n")
			prompt.WriteString(args.String("task"))
			prompt.WriteString("\n\nCode:\n")
			prompt.WriteString(args.String("code"))

			plan, err := deps.Completer.Complete(ctx, architectSystemPrompt, prompt.String())
			if err != nil {
				return nil, errors.Wrap(err, "architect")
			}
			return registry.TextResult(plan), nil
		},
	}
}
