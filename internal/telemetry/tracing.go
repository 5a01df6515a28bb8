package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by every nudgeme package.
const TracerName = "github.com/nudgeme/nudgeme"

// TracingConfig configures OTLP/HTTP trace export.
type TracingConfig struct {
	// Endpoint is the collector host:port. Tracing is disabled when empty.
	Endpoint string `yaml:"otlp_endpoint"`

	// Insecure sends spans over plain HTTP.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of root spans kept. Defaults to 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// SetupTracing installs a global tracer provider exporting to cfg.Endpoint.
// With no endpoint configured the global no-op provider is left in place and
// the returned shutdown does nothing.
func SetupTracing(ctx context.Context, cfg TracingConfig, serviceVersion string) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "nudgeme"),
			attribute.String("service.version", serviceVersion),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the nudgeme tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
