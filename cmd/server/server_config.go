// file: cmd/server/server_config.go
package server

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/config"
	"github.com/dkoosis/toolrelay/internal/logging"
)

// Overrides are command-line values that take precedence over the config file
// and the environment. Empty fields leave the loaded value alone.
type Overrides struct {
	Transport string
	Addr      string
	Debug     bool
}

// loadConfig loads path (or defaults), applies overrides and validates the result.
func loadConfig(path string, o Overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if o.Transport == "" && o.Addr == "" && !o.Debug {
		return cfg, nil
	}
	if o.Transport != "" {
		cfg.Server.Transport = o.Transport
	}
	if o.Addr != "" {
		cfg.Server.Addr = o.Addr
	}
	if o.Debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid command-line override")
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg. Logs never go to
// stdout, which belongs to the stdio transport. The returned closer releases the
// log file, if any.
func setupLogging(cfg config.LoggingConfig) (io.Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory for %s", cfg.File)
		}
		// #nosec G304 -- Path comes from trusted configuration.
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", cfg.File)
		}
		w, closer = f, f
	}

	level := logging.ParseLevel(cfg.Level)
	if cfg.Format == "json" {
		logging.InitLogging(level, w)
	} else {
		logging.InitTextLogging(level, w)
	}
	return closer, nil
}

// DefaultSecretDir is where file-based secrets live when the keyring is unavailable.
func DefaultSecretDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "toolrelay", "secrets")
	}
	return filepath.Join(os.TempDir(), "toolrelay-secrets")
}
