// Package observability defines the interfaces and semantic conventions used
// for tracing, metrics, and structured logging across the orchestration
// engine.
//
// The central entry point is [Provider], which composes [Tracer], [Metrics],
// and [Logger] into a single injectable dependency. The active [Span] and the
// inbound request id travel in a [context.Context] ([ContextWithSpan],
// [ContextWithRequestID]) so log lines can be correlated with the request
// that caused them.
//
// semconv.go holds the attribute-key and span-name constants that should be
// used when recording observations.
package observability
