// Package tracing configures OpenTelemetry spans around replay loading,
// parsing, caching and archiving.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/saviobatista/vatsim-replay/internal/logging"
)

const instrumentation = "github.com/saviobatista/vatsim-replay"

// Config selects the span exporter
type Config struct {
	// Exporter is "stdout" or empty for tracing disabled
	Exporter    string
	ServiceName string
	Writer      io.Writer
}

// ConfigFromEnv reads TRACING
func ConfigFromEnv() Config {
	return Config{
		Exporter:    strings.ToLower(strings.TrimSpace(os.Getenv("TRACING"))),
		ServiceName: "vatsim-replay",
	}
}

// Init installs the global tracer provider and returns a shutdown function
// that flushes pending spans.
func Init(ctx context.Context, cfg Config, lg *logging.Logger) (func(context.Context) error, error) {
	switch cfg.Exporter {
	case "", "none", "off":
		otel.SetTracerProvider(noop.NewTracerProvider())
		lg.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	service := cfg.ServiceName
	if service == "" {
		service = "vatsim-replay"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", service)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	lg.Info("tracing enabled", "exporter", cfg.Exporter, "service_name", service)
	return tp.Shutdown, nil
}

// Shutdown flushes spans with a bounded timeout, logging failures
func Shutdown(ctx context.Context, shutdown func(context.Context) error, lg *logging.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		lg.Warn("tracing shutdown failed", "error", err)
	}
}

// Tracer returns the module tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Start opens a span named name
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
