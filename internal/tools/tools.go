// Package tools holds the tool bodies the server exposes: a web page screenshot,
// a change planner and a code reviewer. Each depends on a narrow collaborator
// interface so the dispatcher and transports can be exercised without a browser,
// git or a network.
package tools

// file: internal/tools/tools.go

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/registry"
)

// Tool names, in registration order.
const (
	NameScreenshot = "screenshot"
	NameArchitect  = "architect"
	NameCodeReview = "codeReview"
)

// Deps are the collaborators the tool bodies call.
type Deps struct {
	Capturer   Capturer
	Completer  Completer
	DiffReader DiffReader
	// ScreenshotDir holds captures made without an explicit path.
	ScreenshotDir string
	Logger        logging.Logger
}

// RegisterAll registers screenshot, architect and codeReview, in that order.
func RegisterAll(reg *registry.Registry, deps Deps) error {
	if deps.Capturer == nil || deps.Completer == nil || deps.DiffReader == nil {
		return errors.New("tools need a capturer, a completer and a diff reader")
	}
	if deps.ScreenshotDir == "" {
		deps.ScreenshotDir = os.TempDir()
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetNoopLogger()
	}

	for _, entry := range []registry.Entry{
		screenshotTool(deps),
		architectTool(deps),
		codeReviewTool(deps),
	} {
		if err := reg.Register(entry.Descriptor, entry.Handler); err != nil {
			return errors.Wrapf(err, "failed to register tool %s", entry.Descriptor.Name)
		}
	}
	return nil
}
