// Package telemetry configures OpenTelemetry tracing for the server process.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentName names the tracer handed to the dispatcher.
const InstrumentName = "github.com/aretw0/fastly-mcp"

// Standard OTLP endpoint variables, most specific first.
var endpointEnv = []string{
	"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Config selects where spans are exported.
type Config struct {
	ServiceName string
	Version     string
	// Endpoint is an OTLP/HTTP URL, e.g. http://localhost:4318. Empty disables export.
	Endpoint string
}

// EndpointFromEnv returns the first OTLP endpoint configured in the environment.
func EndpointFromEnv(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range endpointEnv {
		if v := getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// Tracing is a configured tracer provider and its shutdown hook.
type Tracing struct {
	Provider trace.TracerProvider
	shutdown func(context.Context) error
}

// Tracer returns the tracer used for tool calls.
func (t *Tracing) Tracer() trace.Tracer {
	return t.Provider.Tracer(InstrumentName)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// Setup builds the tracer provider. Without an endpoint it returns a no-op provider.
func Setup(ctx context.Context, cfg Config) (*Tracing, error) {
	if cfg.Endpoint == "" {
		return &Tracing{Provider: noop.NewTracerProvider()}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Tracing{Provider: tp, shutdown: tp.Shutdown}, nil
}
