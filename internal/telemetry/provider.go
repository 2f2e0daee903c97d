package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ExporterKind selects the trace exporter, bound to the
// MCP_TELEMETRY_EXPORTER environment variable.
type ExporterKind string

const (
	ExporterNone    ExporterKind = "NONE"
	ExporterConsole ExporterKind = "CONSOLE"
	ExporterOTLP    ExporterKind = "OTLP"
)

// NewTracerProvider builds the SDK tracer provider for the requested
// exporter. Callers must Shutdown it on process exit to flush pending spans.
// A NONE exporter still produces a real provider so span attributes and
// status tagging exercise the same code path in every configuration; it
// simply never exports anything.
func NewTracerProvider(ctx context.Context, kind ExporterKind, serviceName string) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch kind {
	case ExporterOTLP:
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterConsole:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("build stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterNone, "":
		// No exporter attached; spans are created and dropped.
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", kind)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer is a convenience wrapper over tp.Tracer for the mcp instrumentation
// scope name, kept as a function so callers don't need to know the scope
// string used across the package.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer("github.com/mbilalbenli/pub-dev-mcp")
}
