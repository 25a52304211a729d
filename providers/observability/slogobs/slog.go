package slogobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leofalp/taxassist/providers/observability"
)

// Observer implements observability.Provider on top of a slog.Logger.
// Spans, counters and histograms are reported as debug-level log events,
// which keeps local development observable without an external collector.
// Every line carries the request id found in the context, if any.
type Observer struct {
	logger   *slog.Logger
	counters sync.Map // name -> *slogCounter
}

// New creates a new slog-based observer with functional options.
// Without options, format and level come from TAXASSIST_LOG_FORMAT and
// TAXASSIST_LOG_LEVEL (compact, INFO by default).
//
// Example usage:
//
//	observer := slogobs.New(
//	    slogobs.WithFormat(slogobs.FormatJSON),
//	    slogobs.WithLevel(slog.LevelDebug),
//	)
//	logger := observer.Logger().With("component", "api")
func New(opts ...Option) *Observer {
	cfg := applyOptions(opts...)

	logger := cfg.logger
	if logger == nil {
		logger = NewLogger(cfg.format, cfg.level, cfg.output)
	}
	return &Observer{logger: logger}
}

// Logger returns the underlying slog.Logger so components can derive their
// own scoped loggers.
func (o *Observer) Logger() *slog.Logger {
	return o.logger
}

var _ observability.Provider = (*Observer)(nil)

// toAttrs converts observability attributes, prefixed by the request id from
// ctx and by any fixed leading attributes.
func toAttrs(ctx context.Context, attrs []observability.Attribute, leading ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(leading)+len(attrs)+1)
	out = append(out, leading...)
	if id := observability.RequestIDFromContext(ctx); id != "" {
		out = append(out, slog.String(observability.AttrRequestID, id))
	}
	for _, attr := range attrs {
		out = append(out, slog.Any(attr.Key, attr.Value))
	}
	return out
}

// --- TRACING ---

// StartSpan logs the span start at debug level and returns a context that
// carries the span, so downstream HTTP helpers can attach events to it.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &slogSpan{
		name:      name,
		startTime: time.Now(),
		logger:    o.logger,
		requestID: observability.RequestIDFromContext(ctx),
		attrs:     attrs,
	}
	o.logger.LogAttrs(ctx, slog.LevelDebug, "Span started",
		toAttrs(ctx, attrs, slog.String("span", name), slog.String("event", "span.start"))...)

	return observability.ContextWithSpan(ctx, span), span
}

type slogSpan struct {
	name      string
	startTime time.Time
	logger    *slog.Logger
	requestID string

	mu    sync.Mutex
	attrs []observability.Attribute
}

// ctx rebuilds a context holding the span's request id; span methods are
// called without one.
func (s *slogSpan) ctx() context.Context {
	if s.requestID == "" {
		return context.Background()
	}
	return observability.ContextWithRequestID(context.Background(), s.requestID)
}

// End logs the elapsed time with every attribute gathered so far.
func (s *slogSpan) End() {
	s.mu.Lock()
	attrs := append([]observability.Attribute(nil), s.attrs...)
	s.mu.Unlock()

	ctx := s.ctx()
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Span ended",
		toAttrs(ctx, attrs,
			slog.String("span", s.name),
			slog.String("event", "span.end"),
			slog.Duration("duration", time.Since(s.startTime)),
		)...)
}

func (s *slogSpan) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	s.attrs = append(s.attrs, attrs...)
	s.mu.Unlock()
}

func (s *slogSpan) SetStatus(code observability.StatusCode, description string) {
	status := "unset"
	switch code {
	case observability.StatusOK:
		status = "ok"
	case observability.StatusError:
		status = "error"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, observability.String(observability.AttrStatus, status))
	if description != "" {
		s.attrs = append(s.attrs, observability.String(observability.AttrStatusDescription, description))
	}
}

// RecordError keeps err on the span and logs it at error level right away.
func (s *slogSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, observability.Error(err))
	s.mu.Unlock()

	ctx := s.ctx()
	s.logger.LogAttrs(ctx, slog.LevelError, "Span error",
		toAttrs(ctx, nil,
			slog.String("span", s.name),
			slog.String("event", "error"),
			slog.String("error", err.Error()),
		)...)
}

func (s *slogSpan) AddEvent(name string, attrs ...observability.Attribute) {
	ctx := s.ctx()
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Span event",
		toAttrs(ctx, attrs, slog.String("span", s.name), slog.String("event", name))...)
}

// --- METRICS ---

// Counter returns the counter registered under name, creating it on first
// use. Each Add logs the delta and the running total at debug level.
func (o *Observer) Counter(name string) observability.Counter {
	if c, ok := o.counters.Load(name); ok {
		return c.(*slogCounter)
	}
	c, _ := o.counters.LoadOrStore(name, &slogCounter{name: name, logger: o.logger})
	return c.(*slogCounter)
}

// Histogram logs each observation at debug level. Histograms keep no state,
// so a fresh value is returned on every call.
func (o *Observer) Histogram(name string) observability.Histogram {
	return slogHistogram{name: name, logger: o.logger}
}

type slogCounter struct {
	name   string
	logger *slog.Logger
	value  atomic.Int64
}

func (c *slogCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	total := c.value.Add(value)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "Counter",
		toAttrs(ctx, attrs,
			slog.String("metric", c.name),
			slog.String("type", "counter"),
			slog.Int64("value", total),
			slog.Int64("delta", value),
		)...)
}

type slogHistogram struct {
	name   string
	logger *slog.Logger
}

func (h slogHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	h.logger.LogAttrs(ctx, slog.LevelDebug, "Histogram",
		toAttrs(ctx, attrs,
			slog.String("metric", h.name),
			slog.String("type", "histogram"),
			slog.Float64("value", value),
		)...)
}

// --- LOGGING ---

// Trace logs below DEBUG; it is filtered out unless the level is TRACE.
func (o *Observer) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, LevelTrace, msg, toAttrs(ctx, attrs)...)
}

func (o *Observer) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelDebug, msg, toAttrs(ctx, attrs)...)
}

func (o *Observer) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelInfo, msg, toAttrs(ctx, attrs)...)
}

func (o *Observer) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelWarn, msg, toAttrs(ctx, attrs)...)
}

func (o *Observer) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelError, msg, toAttrs(ctx, attrs)...)
}
