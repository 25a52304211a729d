package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/leofalp/taxassist/internal/config"
	"github.com/leofalp/taxassist/providers/observability"
	"github.com/leofalp/taxassist/providers/observability/otelobs"
)

const tracerName = "taxassist"

// tracerProvider is nil-safe: a disabled tracer keeps spans in the log observer.
type tracerProvider struct {
	provider *sdktrace.TracerProvider
}

func initTracing(ctx context.Context, cfg config.TracingConfig) (*tracerProvider, error) {
	if !cfg.Enabled {
		return &tracerProvider{}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &tracerProvider{provider: provider}, nil
}

// observer returns base when tracing is disabled, otherwise an OpenTelemetry
// observer that keeps logs and metrics on base.
func (tp *tracerProvider) observer(base observability.Provider) observability.Provider {
	if tp.provider == nil {
		return base
	}
	return otelobs.New(tp.provider.Tracer(tracerName), base)
}

func (tp *tracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
