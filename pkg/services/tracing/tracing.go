package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Settings struct {
	// Endpoint is the OTLP/HTTP collector host:port, empty keeps spans in process (default: "")
	Endpoint string `mapstructure:"endpoint"`
	// Insecure sends spans over plain HTTP (default: false)
	Insecure bool `mapstructure:"insecure"`
	// ServiceName is reported as service.name (default: waste-atlas)
	ServiceName string `mapstructure:"service_name" validate:"required"`
	// SampleRatio is the share of root spans recorded (default: 1)
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

func DefaultSettings() Settings {
	return Settings{
		ServiceName: "waste-atlas",
		SampleRatio: 1,
	}
}

// NewProvider builds a tracer provider that exports to the configured
// collector. Extra processors are attached as well, tests use them to record
// spans.
func NewProvider(ctx context.Context, settings Settings, processors ...sdktrace.SpanProcessor) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", settings.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.SampleRatio))),
	}

	if settings.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(settings.Endpoint)}
		if settings.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter for %s: %w", settings.Endpoint, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
