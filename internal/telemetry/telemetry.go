// Package telemetry configures OpenTelemetry tracing with an OTLP/gRPC exporter.
// file: internal/telemetry/telemetry.go
package telemetry

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/config"
	"github.com/dkoosis/toolrelay/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InstrumentationName identifies tracers and meters created by this module.
const InstrumentationName = "github.com/dkoosis/toolrelay"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs a global tracer provider exporting to cfg.OTLPEndpoint.
// With no endpoint configured it leaves the global no-op provider in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger logging.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	logger = logger.WithField("component", "telemetry")

	if cfg.OTLPEndpoint == "" {
		logger.Info("OTLP endpoint not set, OpenTelemetry tracing disabled.")
		return noopShutdown, nil
	}
	logger.Info("Initializing OTLP exporter.", "endpoint", cfg.OTLPEndpoint)

	var grpcOpts []grpc.DialOption
	if cfg.OTLPInsecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		logger.Warn("Using insecure connection for OTLP exporter.")
	}

	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpcOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gRPC connection to OTLP endpoint")
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to create OTLP trace exporter")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "toolrelay"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to create resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	logger.Info("OpenTelemetry tracer provider configured.", "serviceName", serviceName)

	return func(ctx context.Context) error {
		providerErr := tp.Shutdown(ctx)
		connErr := conn.Close()
		return errors.CombineErrors(providerErr, connErr)
	}, nil
}
