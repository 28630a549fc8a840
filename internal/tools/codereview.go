package tools

// file: internal/tools/codereview.go

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/schema"
)

// NoChangesText answers codeReview when the working tree is clean.
const NoChangesText = "No changes to review."

// maxDiffBytes bounds the diff sent for review.
const maxDiffBytes = 200 * 1024

const reviewSystemPrompt = `You are a meticulous code reviewer. Review the following uncommitted diff.
Point out bugs, missing error handling, unclear naming and missing tests. Be specific and cite
file names. If the change looks good, say so briefly.`

// DiffReader returns the uncommitted changes of the repository at dir.
type DiffReader interface {
	Diff(ctx context.Context, dir string) (string, error)
}

// GitDiffReader runs git.
type GitDiffReader struct {
	// GitPath defaults to "git".
	GitPath string
}

// Diff implements DiffReader with `git -C dir diff`.
func (g GitDiffReader) Diff(ctx context.Context, dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", errors.Wrapf(err, "cannot review %s", dir)
	}
	if !info.IsDir() {
		return "", errors.Newf("%s is not a directory", dir)
	}
	gitPath := g.GitPath
	if gitPath == "" {
		gitPath = "git"
	}

	cmd := exec.CommandContext(ctx, gitPath, "-C", dir, "diff")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "git diff failed: %s", strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func codeReviewTool(deps Deps) registry.Entry {
	return registry.Entry{
		Descriptor: registry.Descriptor{
			Name:        NameCodeReview,
			Description: "Review the uncommitted changes in a git repository.",
			ParameterSchema: schema.Object(
				schema.Prop("folderPath", schema.String().Describe("Path to the repository to review.")),
			),
		},
		Handler: func(ctx context.Context, args schema.Args) (*registry.Result, error) {
			dir := args.String("folderPath")
			diff, err := deps.DiffReader.Diff(ctx, dir)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(diff) == "" {
				return registry.TextResult(NoChangesText), nil
			}
			if len(diff) > maxDiffBytes {
				deps.Logger.Info("Diff truncated for review.", "folderPath", dir, "size", len(diff))
				diff = truncateUTF8(diff, maxDiffBytes) + "\n... (diff truncated)"
			}

			review, err := deps.Completer.Complete(ctx, reviewSystemPrompt, diff)
			if err != nil {
				return nil, errors.Wrap(err, "code review")
			}
			return registry.TextResult(review), nil
		},
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
