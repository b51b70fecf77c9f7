// Package observability wires the OpenTelemetry tracer used around pipeline
// execution. Tracing is optional; a disabled manager hands out no-op
// tracers.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/modelrelay/modelrelay"

// Manager owns the tracer provider lifecycle.
type Manager struct {
	provider *sdktrace.TracerProvider
}

// Init sets up a stdout trace exporter when enabled. Disabled tracing costs
// nothing at call sites: the returned manager still serves tracers.
func Init(enabled bool, serviceName string) (*Manager, error) {
	if !enabled {
		return &Manager{}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	resource, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
	)
	otel.SetTracerProvider(provider)

	return &Manager{provider: provider}, nil
}

// Tracer returns the named tracer, no-op when tracing is disabled.
func (m *Manager) Tracer() trace.Tracer {
	if m.provider == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return m.provider.Tracer(tracerName)
}

// Shutdown flushes pending spans.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
