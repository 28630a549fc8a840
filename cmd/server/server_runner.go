// Package server wires configuration, logging, telemetry, secrets and tools into
// a dispatcher and runs it over the configured transport until the context ends.
// file: cmd/server/server_runner.go
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/auth"
	"github.com/dkoosis/toolrelay/internal/config"
	"github.com/dkoosis/toolrelay/internal/dispatch"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/metrics"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/sse"
	"github.com/dkoosis/toolrelay/internal/stdio"
	"github.com/dkoosis/toolrelay/internal/telemetry"
	"github.com/dkoosis/toolrelay/internal/tools"
	"github.com/dkoosis/toolrelay/internal/transport"
)

// RunOptions configures RunServer. Zero values select the process defaults.
type RunOptions struct {
	ConfigPath string
	Overrides  Overrides
	Version    string

	// Stdin and Stdout back the stdio transport. Default os.Stdin and os.Stdout.
	Stdin  io.Reader
	Stdout io.Writer
	// Listener replaces binding server.addr for the sse transport.
	Listener net.Listener
	// Secrets replaces the keyring/file secret store.
	Secrets auth.SecretStore
	// Tools replaces the production tool collaborators.
	Tools *tools.Deps
}

// RunServer starts the server and blocks until ctx is cancelled or the transport ends.
// Errors during startup are returned before any request is served.
func RunServer(ctx context.Context, opts RunOptions) error {
	startTime := time.Now()

	cfg, err := loadConfig(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	logCloser, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger := logging.GetLogger("server_runner")

	logger.Info("Starting toolrelay.",
		"version", opts.Version,
		"transport", cfg.Server.Transport,
		"config_path", opts.ConfigPath)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Telemetry shutdown failed.", "error", err)
		}
	}()

	collector := metrics.NewCollector(50)
	d, err := buildDispatcher(cfg, opts, collector, logger)
	if err != nil {
		return err
	}

	logger.Info("Server startup complete.", "startup_time_ms", time.Since(startTime).Milliseconds())

	switch cfg.Server.Transport {
	case config.TransportSSE:
		err = runSSE(ctx, cfg, opts, d, collector, logger)
	default:
		err = runStdio(ctx, opts, d, collector, logger)
	}
	if err != nil {
		return err
	}
	logger.Info("Server shutdown complete.", "run_duration", time.Since(startTime).Round(time.Millisecond).String())
	return nil
}

// buildDispatcher registers the tools and returns the dispatcher over them.
func buildDispatcher(cfg *config.Config, opts RunOptions, collector *metrics.Collector, logger logging.Logger) (*dispatch.Dispatcher, error) {
	deps := toolDeps(cfg, opts, logger)
	reg := registry.New(logging.GetLogger("registry"))
	if err := tools.RegisterAll(reg, deps); err != nil {
		return nil, err
	}
	reg.Seal()
	logger.Info("Tools registered.", "count", reg.Len())

	return dispatch.New(reg, dispatch.Options{
		CallTimeout:   cfg.Tools.CallTimeout,
		ServerName:    cfg.Server.Name,
		ServerVersion: opts.Version,
		Logger:        logging.GetLogger("dispatch"),
		Metrics:       collector,
	}), nil
}

func toolDeps(cfg *config.Config, opts RunOptions, logger logging.Logger) tools.Deps {
	if opts.Tools != nil {
		deps := *opts.Tools
		if deps.Logger == nil {
			deps.Logger = logging.GetLogger("tools")
		}
		return deps
	}

	store := opts.Secrets
	if store == nil {
		var err error
		store, err = auth.NewSecretStore(DefaultSecretDir(), logging.GetLogger("secrets"))
		if err != nil {
			// The key may still come from config; the tools report a missing key per call.
			logger.Warn("Secret store unavailable.", "error", fmt.Sprintf("%+v", err))
		}
	}
	apiKey, err := auth.ResolveSecret(cfg.LLM.APIKey, store, auth.LLMAPIKey)
	if err != nil {
		logger.Warn("Failed to read stored API key.", "error", err)
	}
	if apiKey == "" {
		logger.Warn("No completion API key configured; architect and codeReview will fail until one is set.")
	}

	var completer tools.Completer = tools.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.Model, apiKey, cfg.LLM.Timeout)
	if cfg.LLM.RequestsPerSecond > 0 {
		completer = tools.LimitedCompleter{
			Inner:   completer,
			Limiter: tools.NewRateLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst),
		}
	}

	return tools.Deps{
		Capturer: tools.ChromeCapturer{
			Path:   cfg.Tools.ChromePath,
			Logger: logging.GetLogger("screenshot"),
		},
		Completer:     completer,
		DiffReader:    tools.GitDiffReader{},
		ScreenshotDir: cfg.Tools.ScreenshotDir,
		Logger:        logging.GetLogger("tools"),
	}
}

func runStdio(ctx context.Context, opts RunOptions, d *dispatch.Dispatcher, collector *metrics.Collector, logger logging.Logger) error {
	in, out := opts.Stdin, opts.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	t := transport.NewNDJSONTransport(in, out, nil, logging.GetLogger("transport"))
	defer t.Close()

	logger.Info("Serving on stdio.")
	srv := stdio.NewServer(t, d, collector, logging.GetLogger("stdio"))
	return srv.Serve(ctx)
}

func runSSE(ctx context.Context, cfg *config.Config, opts RunOptions, d *dispatch.Dispatcher, collector *metrics.Collector, logger logging.Logger) error {
	srv := sse.NewServer(d, sse.Options{
		Addr:              cfg.Server.Addr,
		BaseURL:           cfg.Server.BaseURL,
		KeepAliveInterval: cfg.Server.KeepAliveInterval,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		AuthHeader:        cfg.Auth.Header,
		Metrics:           collector,
		Logger:            logging.GetLogger("sse"),
	})

	serveErr := make(chan error, 1)
	go func() {
		if opts.Listener != nil {
			serveErr <- srv.Serve(opts.Listener)
			return
		}
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		// Serve only returns early on a bind or accept failure.
		if err != nil {
			logger.Error("Session transport failed.", "error", fmt.Sprintf("%+v", err))
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutdown requested.", "reason", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)
	if err := <-serveErr; err != nil {
		shutdownErr = errors.CombineErrors(shutdownErr, err)
	}
	if shutdownErr != nil {
		return errors.Wrap(shutdownErr, "graceful shutdown incomplete")
	}
	return nil
}
