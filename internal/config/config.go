// Package config handles loading, parsing, and validating application configuration.
// It defines the structure for configuration settings, provides default values,
// loads settings from YAML files, and applies overrides from TOOLRELAY_* environment variables.
// file: internal/config/config.go.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. TOOLRELAY_SERVER_ADDR.
const EnvPrefix = "TOOLRELAY"

// Transport names accepted in ServerConfig.Transport.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ServerConfig contains settings for the process and its transports.
type ServerConfig struct {
	// Name is reported to clients in the initialize handshake.
	Name string `yaml:"name" envconfig:"NAME"`
	// Transport selects "stdio" or "sse".
	Transport string `yaml:"transport" envconfig:"TRANSPORT"`
	// Addr is the listen address for the sse transport. Ignored for stdio.
	Addr string `yaml:"addr" envconfig:"ADDR"`
	// BaseURL prefixes the endpoint announced to SSE clients. Empty means a relative path.
	BaseURL string `yaml:"baseURL" envconfig:"BASE_URL"`
	// KeepAliveInterval between SSE comment frames. Zero disables keepalives.
	KeepAliveInterval time.Duration `yaml:"keepAliveInterval" envconfig:"KEEP_ALIVE_INTERVAL"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// MaxBodyBytes caps a single inbound message on either transport.
	MaxBodyBytes int64 `yaml:"maxBodyBytes" envconfig:"MAX_BODY_BYTES"`
}

// AuthConfig contains settings for the session transport's credential gate.
type AuthConfig struct {
	// Header carries the client credential.
	Header string `yaml:"header" envconfig:"HEADER"`
}

// ToolsConfig contains settings shared by tool handlers.
type ToolsConfig struct {
	// CallTimeout is the per-call deadline applied by the dispatcher.
	CallTimeout time.Duration `yaml:"callTimeout" envconfig:"CALL_TIMEOUT"`
	// ChromePath is the headless browser binary used by the screenshot tool.
	ChromePath string `yaml:"chromePath" envconfig:"CHROME_PATH"`
	// ScreenshotDir receives captures when the caller gives no path.
	ScreenshotDir string `yaml:"screenshotDir" envconfig:"SCREENSHOT_DIR"`
}

// LLMConfig contains settings for the completion backend used by architect and codeReview.
type LLMConfig struct {
	BaseURL string        `yaml:"baseURL" envconfig:"BASE_URL"`
	Model   string        `yaml:"model" envconfig:"MODEL"`
	APIKey  string        `yaml:"apiKey" envconfig:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// RequestsPerSecond throttles completion calls. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" envconfig:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" envconfig:"BURST"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint" envconfig:"OTLP_ENDPOINT"`
	OTLPInsecure bool   `yaml:"otlpInsecure" envconfig:"OTLP_INSECURE"`
	ServiceName  string `yaml:"serviceName" envconfig:"SERVICE_NAME"`
}

// LoggingConfig controls log level, format ("text" or "json") and destination.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
	// File redirects logs away from stderr. Supports '~' expansion.
	File string `yaml:"file" envconfig:"FILE"`
}

// Config is the root configuration structure for toolrelay.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"AUTH"`
	Tools     ToolsConfig     `yaml:"tools" envconfig:"TOOLS"`
	LLM       LLMConfig       `yaml:"llm" envconfig:"LLM"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// DefaultConfig returns a configuration populated with default values.
// Environment overrides are not applied; call ApplyEnv for that.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:              "toolrelay",
			Transport:         TransportStdio,
			Addr:              ":3000",
			KeepAliveInterval: 15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      1024 * 1024,
		},
		Auth: AuthConfig{
			Header: "Authorization",
		},
		Tools: ToolsConfig{
			CallTimeout:   60 * time.Second,
			ChromePath:    "chromium",
			ScreenshotDir: os.TempDir(),
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
			Timeout: 120 * time.Second,
			Burst:   1,
		},
		Telemetry: TelemetryConfig{
			OTLPInsecure: true,
			ServiceName:  "toolrelay",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from the specified YAML file path on top of defaults.
// Supports '~' expansion in the file path.
func LoadFromFile(path string) (*Config, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- Path comes from command-line flag, considered trusted input.
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", expanded)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file YAML: %s", expanded)
	}
	logging.GetLogger("config").Debug("Loaded configuration file.", "path", expanded)
	return cfg, nil
}

// ApplyEnv overrides fields from TOOLRELAY_* environment variables.
// Unset variables leave the current value untouched.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return errors.Wrap(err, "failed to process environment overrides")
	}
	logFile, err := ExpandPath(c.Logging.File)
	if err != nil {
		return err
	}
	c.Logging.File = logFile
	return nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportSSE:
	default:
		return errors.Newf("invalid server.transport %q: must be %q or %q", c.Server.Transport, TransportStdio, TransportSSE)
	}
	if c.Server.Transport == TransportSSE && c.Server.Addr == "" {
		return errors.New("server.addr is required for the sse transport")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.Newf("server.maxBodyBytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.KeepAliveInterval < 0 {
		return errors.New("server.keepAliveInterval must not be negative")
	}
	if c.Tools.CallTimeout <= 0 {
		return errors.Newf("tools.callTimeout must be positive, got %s", c.Tools.CallTimeout)
	}
	if c.LLM.RequestsPerSecond < 0 || c.LLM.Burst < 0 {
		return errors.New("llm.requestsPerSecond and llm.burst must not be negative")
	}
	if strings.TrimSpace(c.Auth.Header) == "" {
		return errors.New("auth.header must not be empty")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.Newf("invalid logging.format %q: must be \"text\" or \"json\"", c.Logging.Format)
	}
	return nil
}

// ExpandPath replaces a leading '~' with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory to expand path")
	}
	return filepath.Join(homeDir, path[1:]), nil
}
