// Package otelobs implements the observability Tracer on OpenTelemetry while
// delegating metrics and logging to another observability.Provider
// (normally slogobs). Spans started here are exported by whatever
// TracerProvider the process installed.
package otelobs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leofalp/taxassist/providers/observability"
)

// Observer combines an OpenTelemetry tracer with a base provider for logs and
// metrics.
type Observer struct {
	observability.Metrics
	observability.Logger

	tracer trace.Tracer
}

var _ observability.Provider = (*Observer)(nil)

// New returns an Observer that starts spans on tracer. A nil base falls back
// to observability.Nop for logs and metrics.
func New(tracer trace.Tracer, base observability.Provider) *Observer {
	if base == nil {
		base = observability.Nop()
	}
	return &Observer{Metrics: base, Logger: base, tracer: tracer}
}

// StartSpan starts an OpenTelemetry span and stores the adapter in the
// returned context so SpanFromContext keeps working for downstream helpers.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	ctx, otelSpan := o.tracer.Start(ctx, name, trace.WithAttributes(toKeyValues(attrs)...))
	span := &spanAdapter{span: otelSpan}
	return observability.ContextWithSpan(ctx, span), span
}

type spanAdapter struct {
	span trace.Span
}

func (s *spanAdapter) End() { s.span.End() }

func (s *spanAdapter) SetAttributes(attrs ...observability.Attribute) {
	s.span.SetAttributes(toKeyValues(attrs)...)
}

func (s *spanAdapter) SetStatus(code observability.StatusCode, description string) {
	switch code {
	case observability.StatusOK:
		s.span.SetStatus(codes.Ok, description)
	case observability.StatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *spanAdapter) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s *spanAdapter) AddEvent(name string, attrs ...observability.Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(toKeyValues(attrs)...))
}

func toKeyValues(attrs []observability.Attribute) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		kvs = append(kvs, toKeyValue(attr))
	}
	return kvs
}

func toKeyValue(attr observability.Attribute) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case fmt.Stringer:
		return attribute.String(attr.Key, v.String())
	default:
		return attribute.String(attr.Key, fmt.Sprint(v))
	}
}
