// Package slogobs provides an observability.Provider implementation backed by
// Go's standard library log/slog package.
// Spans and counters are emitted as debug-level log events; log calls map to
// slog levels (plus a TRACE level below DEBUG).
// The main entry point is [New]; output format and log level can be tuned with
// [WithFormat], [WithLevel], [WithOutput], and [WithLogger], or through the
// TAXASSIST_LOG_FORMAT / TAXASSIST_LOG_LEVEL environment variables.
package slogobs
