package fallback

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/ai"
)

// scriptedProvider answers with a fixed text or error and counts calls.
type scriptedProvider struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32

	mu       sync.Mutex
	requests []ai.ChatRequest
}

func (p *scriptedProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.requests = append(p.requests, request)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &ai.ChatResponse{Content: p.text, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) IsStopMessage(*ai.ChatResponse) bool      { return true }
func (p *scriptedProvider) WithAPIKey(string) ai.Provider            { return p }
func (p *scriptedProvider) WithBaseURL(string) ai.Provider           { return p }
func (p *scriptedProvider) WithHttpClient(*http.Client) ai.Provider { return p }

func (p *scriptedProvider) lastRequest() ai.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoBackends) {
		t.Fatalf("expected ErrNoBackends, got %v", err)
	}
	if _, err := New([]Backend{{Name: "a"}}); err == nil {
		t.Fatal("expected error for backend without provider")
	}
	p := &scriptedProvider{text: "x"}
	if _, err := New([]Backend{{Name: "a", Provider: p}, {Name: "a", Provider: p}}); err == nil {
		t.Fatal("expected error for duplicate names")
	}
}

func TestGenerate_FallsBackToSecondBackend(t *testing.T) {
	a := &scriptedProvider{err: errors.New("connection refused")}
	b := &scriptedProvider{text: "VAT is 7.5%."}

	client, err := New([]Backend{{Name: "A", Provider: a}, {Name: "B", Provider: b}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, used, err := client.Generate(context.Background(), "What is the VAT rate?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if used != "B" || text != "VAT is 7.5%." {
		t.Fatalf("unexpected result (%q, %q)", text, used)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("expected one call each, got A=%d B=%d", a.calls.Load(), b.calls.Load())
	}
}

func TestGenerate_StickyPreference(t *testing.T) {
	a := &scriptedProvider{err: errors.New("down")}
	b := &scriptedProvider{text: "ok"}

	client, err := New([]Backend{{Name: "A", Provider: a}, {Name: "B", Provider: b}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, err := client.Generate(context.Background(), "first"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if client.Preferred() != "B" {
		t.Fatalf("expected preference to move to B, got %s", client.Preferred())
	}

	if _, used, err := client.Generate(context.Background(), "second"); err != nil || used != "B" {
		t.Fatalf("second call = (%q, %v)", used, err)
	}
	if a.calls.Load() != 1 {
		t.Fatalf("expected the failing primary to be skipped on the second call, got %d calls", a.calls.Load())
	}
}

func TestGenerate_WrapsAroundFromPreferred(t *testing.T) {
	a := &scriptedProvider{text: "from A"}
	b := &scriptedProvider{err: errors.New("down")}

	client, _ := New([]Backend{{Name: "A", Provider: a}, {Name: "B", Provider: b}})
	client.preferred.Store(1)

	_, used, err := client.Generate(context.Background(), "q")
	if err != nil || used != "A" {
		t.Fatalf("expected wrap-around to A, got (%q, %v)", used, err)
	}
	if client.Preferred() != "A" {
		t.Fatalf("expected preference back on A, got %s", client.Preferred())
	}
}

func TestGenerate_AllProvidersUnavailable(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	client, _ := New([]Backend{
		{Name: "A", Provider: &scriptedProvider{err: errA}},
		{Name: "B", Provider: &scriptedProvider{err: errB}},
	})

	_, used, err := client.Generate(context.Background(), "q")
	if !errors.Is(err, ErrAllProvidersUnavailable) {
		t.Fatalf("expected ErrAllProvidersUnavailable, got %v", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both backend errors to be wrapped, got %v", err)
	}
	if used != "" {
		t.Fatalf("expected no provider name, got %q", used)
	}
}

func TestGenerate_EmptyCompletionIsFailure(t *testing.T) {
	a := &scriptedProvider{text: "   "}
	b := &scriptedProvider{text: "real answer"}
	client, _ := New([]Backend{{Name: "A", Provider: a}, {Name: "B", Provider: b}})

	text, used, err := client.Generate(context.Background(), "q")
	if err != nil || used != "B" || text != "real answer" {
		t.Fatalf("unexpected result (%q, %q, %v)", text, used, err)
	}
}

func TestGenerate_TimeoutAdvances(t *testing.T) {
	slow := &scriptedProvider{text: "late", delay: time.Second}
	fast := &scriptedProvider{text: "fast"}
	client, _ := New([]Backend{{Name: "slow", Provider: slow}, {Name: "fast", Provider: fast}},
		WithCallTimeout(20*time.Millisecond))

	started := time.Now()
	text, used, err := client.Generate(context.Background(), "q")
	if err != nil || used != "fast" || text != "fast" {
		t.Fatalf("unexpected result (%q, %q, %v)", text, used, err)
	}
	if time.Since(started) > 500*time.Millisecond {
		t.Fatalf("timeout not applied, took %s", time.Since(started))
	}
}

func TestGenerate_CallerCancellationStops(t *testing.T) {
	a := &scriptedProvider{err: errors.New("down")}
	b := &scriptedProvider{text: "ok"}
	client, _ := New([]Backend{{Name: "A", Provider: a}, {Name: "B", Provider: b}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.Generate(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a.calls.Load() != 0 || b.calls.Load() != 0 {
		t.Fatal("no backend should be called after cancellation")
	}
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	a := &flakyProvider{failures: 1, err: &utils.StatusError{StatusCode: http.StatusTooManyRequests}}
	client, _ := New([]Backend{{Name: "A", Provider: a}},
		WithRetry(RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))

	text, used, err := client.Generate(context.Background(), "q")
	if err != nil || used != "A" || text != "recovered" {
		t.Fatalf("unexpected result (%q, %q, %v)", text, used, err)
	}
	if a.calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", a.calls.Load())
	}
}

func TestGenerate_DoesNotRetryPermanentErrors(t *testing.T) {
	a := &flakyProvider{failures: 5, err: &utils.StatusError{StatusCode: http.StatusUnauthorized}}
	client, _ := New([]Backend{{Name: "A", Provider: a}},
		WithRetry(RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}))

	if _, _, err := client.Generate(context.Background(), "q"); !errors.Is(err, ErrAllProvidersUnavailable) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if a.calls.Load() != 1 {
		t.Fatalf("expected a single call for a 401, got %d", a.calls.Load())
	}
}

func TestGenerateRequest_ModelAndGenerationConfig(t *testing.T) {
	p := &scriptedProvider{text: "ok"}
	client, _ := New([]Backend{{Name: "A", Provider: p, Model: "llama-3.3-70b-versatile"}},
		WithGenerationConfig(ai.GenerationConfig{Temperature: 0.2, MaxTokens: 512}))

	if _, _, err := client.GenerateRequest(context.Background(), ai.NewUserRequest("system", "q")); err != nil {
		t.Fatalf("GenerateRequest: %v", err)
	}
	req := p.lastRequest()
	if req.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("expected backend model, got %q", req.Model)
	}
	if req.GenerationConfig == nil || req.GenerationConfig.MaxTokens != 512 {
		t.Fatalf("expected default generation config, got %+v", req.GenerationConfig)
	}
	if req.SystemPrompt != "system" {
		t.Fatalf("expected system prompt to pass through, got %q", req.SystemPrompt)
	}
}

func TestGenerate_ConcurrentCallsAreSafe(t *testing.T) {
	a := &scriptedProvider{err: errors.New("down")}
	b := &scriptedProvider{text: "ok"}
	client, _ := New([]Backend{{Name: "A", Provider: a}, {Name: "B", Provider: b}})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, used, err := client.Generate(context.Background(), "q"); err != nil || used != "B" {
				t.Errorf("unexpected result (%q, %v)", used, err)
			}
		}()
	}
	wg.Wait()

	if total := a.calls.Load(); total > 20 {
		t.Fatalf("backend A attempted more than once per call: %d", total)
	}
}

func TestComputeBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	applyRetryDefaults(&cfg)

	if got := computeBackoff(cfg, 0); got < 100*time.Millisecond || got > 110*time.Millisecond {
		t.Fatalf("attempt 0 backoff out of range: %s", got)
	}
	if got := computeBackoff(cfg, 10); got < 300*time.Millisecond || got > 330*time.Millisecond {
		t.Fatalf("capped backoff out of range: %s", got)
	}
}

// flakyProvider fails the first failures calls, then succeeds.
type flakyProvider struct {
	scriptedProvider
	failures int32
	err      error
}

func (p *flakyProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	n := p.calls.Add(1)
	if n <= p.failures {
		return nil, p.err
	}
	return &ai.ChatResponse{Content: "recovered"}, nil
}
