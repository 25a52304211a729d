package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/leofalp/taxassist/internal/metrics"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/observability"
)

var (
	// ErrAllProvidersUnavailable is returned when every backend failed for a
	// call. The returned error also wraps each backend's own failure.
	ErrAllProvidersUnavailable = errors.New("fallback: all providers unavailable")

	// ErrEmptyCompletion marks a backend answer with no text.
	ErrEmptyCompletion = errors.New("fallback: empty completion")

	// ErrNoBackends is returned by New for an empty backend list.
	ErrNoBackends = errors.New("fallback: at least one backend is required")
)

// Backend is one generation provider in the fallback order.
type Backend struct {
	// Name labels the backend in results, logs and metrics.
	Name string
	// Provider performs the actual call.
	Provider ai.Provider
	// Model overrides ChatRequest.Model when set.
	Model string
}

// Generator is the surface handlers, the classifier and the synthesizer
// depend on.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, string, error)
	GenerateRequest(ctx context.Context, request ai.ChatRequest) (string, string, error)
}

var _ Generator = (*Client)(nil)

// Client calls backends in order, starting at the last one that succeeded.
// It is safe for concurrent use.
type Client struct {
	backends  []Backend
	preferred atomic.Int32
	config    config
}

// New builds a client over backends, which are tried in the given order.
func New(backends []Backend, opts ...Option) (*Client, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	seen := make(map[string]struct{}, len(backends))
	for i, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("fallback: backend %d (%q) has no provider", i, b.Name)
		}
		if strings.TrimSpace(b.Name) == "" {
			return nil, fmt.Errorf("fallback: backend %d has no name", i)
		}
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("fallback: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
	}

	cfg := config{
		callTimeout: DefaultCallTimeout,
		observer:    observability.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	applyRetryDefaults(&cfg.retry)

	return &Client{
		backends: append([]Backend(nil), backends...),
		config:   cfg,
	}, nil
}

// Backends returns the configured backend names in fallback order.
func (c *Client) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name
	}
	return names
}

// Preferred returns the name of the backend the next call starts with.
func (c *Client) Preferred() string {
	return c.backends[c.preferredIndex()].Name
}

func (c *Client) preferredIndex() int {
	idx := int(c.preferred.Load())
	if idx < 0 || idx >= len(c.backends) {
		return 0
	}
	return idx
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string) (string, string, error) {
	return c.GenerateRequest(ctx, ai.NewUserRequest("", prompt))
}

// GenerateRequest walks the backends starting at the preferred one and returns
// the first non-empty completion with the name of the backend that produced
// it. Each backend is attempted at most once per call (plus configured
// transient retries). When every backend fails the error wraps
// ErrAllProvidersUnavailable and the individual failures. A cancelled caller
// context stops the walk and is returned as is.
func (c *Client) GenerateRequest(ctx context.Context, request ai.ChatRequest) (string, string, error) {
	if request.GenerationConfig == nil && c.config.generation != nil {
		gc := *c.config.generation
		request.GenerationConfig = &gc
	}

	observer := c.config.observer
	ctx, span := observer.StartSpan(ctx, observability.SpanFallbackGenerate,
		observability.Int("backends", len(c.backends)),
	)
	defer span.End()

	start := int(c.preferred.Load())
	if start < 0 || start >= len(c.backends) {
		start = 0
	}

	var errs []error
	for attempt := 0; attempt < len(c.backends); attempt++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(observability.StatusError, "caller context done")
			return "", "", err
		}

		idx := (start + attempt) % len(c.backends)
		backend := c.backends[idx]

		text, err := c.tryBackend(ctx, backend, request, attempt)
		if err == nil {
			// Stale reads are fine: whichever concurrent call wins the swap
			// sets the preference.
			if idx != start {
				c.preferred.CompareAndSwap(int32(start), int32(idx))
			}
			span.AddEvent(observability.EventProviderSucceeded,
				observability.String(observability.AttrLLMProvider, backend.Name),
				observability.Int(observability.AttrLLMAttempt, attempt),
			)
			span.SetStatus(observability.StatusOK, "")
			return text, backend.Name, nil
		}

		if ctx.Err() != nil {
			// The caller gave up while this backend was running.
			span.RecordError(ctx.Err())
			span.SetStatus(observability.StatusError, "caller context done")
			return "", "", ctx.Err()
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name, err))
		metrics.ProviderFallbacks.WithLabelValues(backend.Name).Inc()
		span.AddEvent(observability.EventProviderFailed,
			observability.String(observability.AttrLLMProvider, backend.Name),
			observability.Int(observability.AttrLLMAttempt, attempt),
			observability.Error(err),
		)
		observer.Warn(ctx, "generation backend failed",
			observability.String(observability.AttrLLMProvider, backend.Name),
			observability.Error(err),
		)
	}

	metrics.ProviderExhausted.Inc()
	observer.Counter(observability.MetricFallbackAttempts).Add(ctx, int64(len(errs)),
		observability.String(observability.AttrStatus, "exhausted"),
	)

	err := fmt.Errorf("%w: %w", ErrAllProvidersUnavailable, errors.Join(errs...))
	span.RecordError(err)
	span.SetStatus(observability.StatusError, "all providers unavailable")
	return "", "", err
}

// tryBackend runs one backend with its retries. Each attempt gets its own
// timeout.
func (c *Client) tryBackend(ctx context.Context, backend Backend, request ai.ChatRequest, attempt int) (string, error) {
	if backend.Model != "" {
		request.Model = backend.Model
	}

	var lastErr error
	for retry := 0; retry <= c.config.retry.MaxRetries; retry++ {
		if retry > 0 {
			if err := sleepCtx(ctx, computeBackoff(c.config.retry, retry-1)); err != nil {
				return "", err
			}
		}

		text, err := c.call(ctx, backend, request, attempt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil || !c.config.retry.RetryableFunc(err) {
			break
		}
	}
	return "", lastErr
}

func (c *Client) call(ctx context.Context, backend Backend, request ai.ChatRequest, attempt int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.callTimeout)
	defer cancel()

	observer := c.config.observer
	observer.Debug(callCtx, observability.EventLLMRequestStart,
		observability.String(observability.AttrLLMProvider, backend.Name),
		observability.String(observability.AttrLLMModel, request.Model),
		observability.Int(observability.AttrLLMAttempt, attempt),
	)

	started := time.Now()
	response, err := backend.Provider.SendMessage(callCtx, request)
	elapsed := time.Since(started)

	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err == nil {
		if response.Text() == "" {
			err = ErrEmptyCompletion
		}
	}
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", c.config.callTimeout, err)
	}

	metrics.RecordProviderCall(backend.Name, elapsed, err)
	observer.Debug(callCtx, observability.EventLLMRequestEnd,
		observability.String(observability.AttrLLMProvider, backend.Name),
		observability.Duration(observability.AttrDuration, elapsed),
		observability.Bool(observability.AttrStatus, err == nil),
	)
	if err != nil {
		return "", err
	}
	return response.Text(), nil
}
