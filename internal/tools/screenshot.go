package tools

// file: internal/tools/screenshot.go

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/schema"
	"github.com/google/uuid"
)

// Capturer renders url into a PNG file at path.
type Capturer interface {
	Capture(ctx context.Context, url, path string) error
}

// ChromeCapturer drives a headless Chrome or Chromium binary.
type ChromeCapturer struct {
	// Path is the browser executable; a bare name is looked up in PATH.
	Path   string
	Width  int
	Height int
	Logger logging.Logger
}

// Capture implements Capturer.
func (c ChromeCapturer) Capture(ctx context.Context, target, path string) error {
	width, height := c.Width, c.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 800
	}
	logger := c.Logger
	if logger == nil {
		logger = logging.GetNoopLogger()
	}

	args := []string{
		"--headless=new",
		"--disable-gpu",
		"--hide-scrollbars",
		"--no-first-run",
		"--window-size=" + strconv.Itoa(width) + "," + strconv.Itoa(height),
		"--screenshot=" + path,
		target,
	}
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Launching headless browser.", "browser", c.Path, "url", target, "path", path)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "screenshot aborted")
		}
		return errors.Wrapf(err, "browser failed: %s", strings.TrimSpace(lastLine(stderr.String())))
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "browser produced no screenshot")
	}
	return nil
}

func screenshotTool(deps Deps) registry.Entry {
	return registry.Entry{
		Descriptor: registry.Descriptor{
			Name:        NameScreenshot,
			Description: "Take a screenshot of a web page and return it as a PNG image.",
			ParameterSchema: schema.Object(
				schema.Prop("url", schema.String().Describe("The http or https URL to capture.")),
				schema.Prop("fullPathToScreenshot", schema.String().Optional().
					Describe("Where to save the PNG. When omitted the capture is kept only in the response.")),
			),
		},
		Handler: func(ctx context.Context, args schema.Args) (*registry.Result, error) {
			target := args.String("url")
			if err := checkPageURL(target); err != nil {
				return nil, err
			}

			keep := args.Has("fullPathToScreenshot") && args.String("fullPathToScreenshot") != ""
			path := args.String("fullPathToScreenshot")
			if !keep {
				path = filepath.Join(deps.ScreenshotDir, "screenshot-"+uuid.NewString()+".png")
				defer func() {
					if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
						deps.Logger.Warn("Failed to remove temporary screenshot.", "path", path, "error", err)
					}
				}()
			} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, errors.Wrap(err, "failed to create screenshot directory")
			}

			if err := deps.Capturer.Capture(ctx, target, path); err != nil {
				return nil, err
			}
			png, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.Wrap(err, "failed to read screenshot")
			}
			text := "Screenshot of " + target
			if keep {
				text = "Screenshot saved to " + path
			}
			return registry.NewResult(
				registry.Text(text),
				registry.Image("image/png", base64.StdEncoding.EncodeToString(png)),
			), nil
		},
	}
}

func checkPageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.Newf("url %q has no host", raw)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
