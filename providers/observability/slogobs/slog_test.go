package slogobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leofalp/taxassist/providers/observability"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"  DEBUG  ", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGetLogLevelFromEnv_Precedence(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("TAXASSIST_LOG_LEVEL", "debug")
	if got := GetLogLevelFromEnv(); got != slog.LevelDebug {
		t.Fatalf("expected TAXASSIST_LOG_LEVEL to win, got %v", got)
	}

	t.Setenv("TAXASSIST_LOG_LEVEL", "")
	if got := GetLogLevelFromEnv(); got != slog.LevelError {
		t.Fatalf("expected LOG_LEVEL fallback, got %v", got)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"json":    FormatJSON,
		" JSON ":  FormatJSON,
		"compact": FormatCompact,
		"pretty":  FormatCompact,
		"":        FormatCompact,
	}
	for input, want := range cases {
		if got := ParseFormat(input); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestGetFormatFromEnv(t *testing.T) {
	t.Setenv("TAXASSIST_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", "json")
	if got := GetFormatFromEnv(); got != FormatJSON {
		t.Fatalf("expected json from LOG_FORMAT, got %q", got)
	}
}

func TestObserver_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatJSON), WithLevel(slog.LevelInfo), WithOutput(&buf))

	observer.Info(context.Background(), "chat committed", observability.String(observability.AttrThreadID, "t1"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "chat committed" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record[observability.AttrThreadID] != "t1" {
		t.Fatalf("expected thread attribute, got %v", record)
	}
}

func TestObserver_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatCompact), WithLevel(slog.LevelWarn), WithOutput(&buf))

	observer.Debug(context.Background(), "hidden")
	observer.Info(context.Background(), "hidden too")
	observer.Warn(context.Background(), "visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestObserver_TraceLevelLabel(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatCompact), WithLevel(LevelTrace), WithOutput(&buf))

	observer.Trace(context.Background(), "very detailed")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Fatalf("expected TRACE label, got %q", buf.String())
	}
}

func TestObserver_SpanLifecycle(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatCompact), WithLevel(slog.LevelDebug), WithOutput(&buf))

	ctx, span := observer.StartSpan(context.Background(), "graph.node", observability.String(observability.AttrGraphNode, "route"))
	if observability.SpanFromContext(ctx) != span {
		t.Fatal("expected StartSpan to attach the span to the returned context")
	}
	span.AddEvent("checkpoint.loaded")
	span.RecordError(errors.New("boom"))
	span.SetStatus(observability.StatusError, "boom")
	span.End()

	out := buf.String()
	for _, want := range []string{"Span started", "checkpoint.loaded", "Span error", "Span ended", "status=error"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestObserver_CounterAccumulates(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatCompact), WithLevel(slog.LevelDebug), WithOutput(&buf))

	counter := observer.Counter("fallback.attempts")
	counter.Add(context.Background(), 1)
	counter.Add(context.Background(), 2)

	if observer.Counter("fallback.attempts") != counter {
		t.Fatal("expected the same counter instance for the same name")
	}
	if !strings.Contains(buf.String(), "value=3") {
		t.Fatalf("expected cumulative value 3 in output, got %q", buf.String())
	}
}

func TestWithLogger_TakesPrecedence(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	observer := New(WithLogger(logger), WithFormat(FormatCompact))

	if observer.Logger() != logger {
		t.Fatal("expected the provided logger to be used")
	}
}

func TestObserver_RequestIDOnEveryLine(t *testing.T) {
	var buf bytes.Buffer
	observer := New(WithFormat(FormatCompact), WithLevel(slog.LevelDebug), WithOutput(&buf))
	ctx := observability.ContextWithRequestID(context.Background(), "req-7")

	observer.Info(ctx, "chat committed")
	_, span := observer.StartSpan(ctx, "orchestrator.chat")
	span.End()
	observer.Histogram("graph.node.duration_ms").Record(ctx, 12)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d:\n%s", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "request_id=req-7") {
			t.Errorf("missing request id in %q", line)
		}
	}
}
