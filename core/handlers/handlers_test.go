package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/knowledge"
	"github.com/leofalp/taxassist/providers/websearch"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	systems []string
	prompts []string
	// reply returns the text for a call; nil means "answer".
	reply func(system, prompt string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, string, error) {
	return g.GenerateRequest(ctx, ai.NewUserRequest("", prompt))
}

func (g *fakeGenerator) GenerateRequest(_ context.Context, request ai.ChatRequest) (string, string, error) {
	prompt := request.Messages[len(request.Messages)-1].Content
	g.mu.Lock()
	g.calls++
	g.systems = append(g.systems, request.SystemPrompt)
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.reply == nil {
		return "answer", "fake", nil
	}
	text, err := g.reply(request.SystemPrompt, prompt)
	if err != nil {
		return "", "", err
	}
	return text, "fake", nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

type fakeKnowledge struct {
	passages []knowledge.Passage
	err      error
	delay    time.Duration

	mu      sync.Mutex
	queries []knowledge.Query
}

func (k *fakeKnowledge) Retrieve(ctx context.Context, q knowledge.Query) ([]knowledge.Passage, error) {
	k.mu.Lock()
	k.queries = append(k.queries, q)
	k.mu.Unlock()
	if k.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(k.delay):
		}
	}
	return k.passages, k.err
}

type fakeSearcher struct {
	results []websearch.Result
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (s *fakeSearcher) Search(ctx context.Context, _ websearch.Query) ([]websearch.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.results, s.err
}

var payePassages = []knowledge.Passage{
	{Text: "The first ₦800,000 of annual income is tax free.", Source: "nta-2025.pdf", Kind: "paye", Score: 0.92},
	{Text: "Income above the threshold is taxed progressively from 15% to 25%.", Source: "nta-2025.pdf", Kind: "paye", Score: 0.88},
}

func TestTax_UsesTaxDomainWithTopK3(t *testing.T) {
	kb := &fakeKnowledge{passages: payePassages}
	gen := &fakeGenerator{}
	h := NewTax(Deps{Generator: gen, Knowledge: kb})

	result := h.Handle(context.Background(), Request{Query: "What is the VAT rate?"})

	if kb.queries[0].Domain != knowledge.DomainTax || kb.queries[0].TopK != 3 {
		t.Fatalf("unexpected knowledge query: %+v", kb.queries[0])
	}
	if result.Answers[conversation.RouteTax] != "answer" || len(result.Answers) != 1 {
		t.Fatalf("unexpected answers: %+v", result.Answers)
	}
	if result.Provider != "fake" || result.Degraded {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if len(result.Sources) != 2 || result.Sources[0].Origin != "nta-2025.pdf" {
		t.Fatalf("unexpected sources: %+v", result.Sources)
	}
	if !strings.Contains(gen.lastPrompt(), "[Document 1 - paye - nta-2025.pdf]") {
		t.Fatalf("passages missing from prompt:\n%s", gen.lastPrompt())
	}
}

func TestTax_NoPassagesGivesExplicitStatement(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewTax(Deps{Generator: gen, Knowledge: &fakeKnowledge{}})

	result := h.Handle(context.Background(), Request{Query: "q"})
	if result.Answers[conversation.RouteTax] != noInformationAnswer {
		t.Fatalf("expected no-information statement, got %q", result.Answers[conversation.RouteTax])
	}
	if gen.calls != 0 {
		t.Fatal("generation must not run without passages")
	}
	if result.Degraded {
		t.Fatal("an empty retrieval is not a failure")
	}
}

func TestTax_KnowledgeFailureIsDegraded(t *testing.T) {
	h := NewTax(Deps{Generator: &fakeGenerator{}, Knowledge: &fakeKnowledge{err: knowledge.ErrUnavailable}})

	result := h.Handle(context.Background(), Request{Query: "q"})
	if !result.Degraded || result.Answers[conversation.RouteTax] == "" {
		t.Fatalf("expected degraded non-empty answer, got %+v", result)
	}
}

func TestTax_GenerationFailureReturnsExcerpts(t *testing.T) {
	gen := &fakeGenerator{reply: func(string, string) (string, error) {
		return "", fallback.ErrAllProvidersUnavailable
	}}
	h := NewTax(Deps{Generator: gen, Knowledge: &fakeKnowledge{passages: payePassages}})

	result := h.Handle(context.Background(), Request{Query: "q"})
	answer := result.Answers[conversation.RouteTax]
	if !result.Degraded || !strings.Contains(answer, "₦800,000") || !strings.Contains(answer, "source: nta-2025.pdf") {
		t.Fatalf("expected excerpt answer, got %q (degraded=%v)", answer, result.Degraded)
	}
	if result.Provider != "" {
		t.Fatalf("no provider should be reported, got %q", result.Provider)
	}
}

func TestTax_WebEnrichmentIsConcatenated(t *testing.T) {
	search := &fakeSearcher{results: []websearch.Result{{Title: "Finance Act update", URL: "https://firs.gov.ng/a", Content: "New VAT guidance"}}}
	gen := &fakeGenerator{}
	h := NewTax(Deps{Generator: gen, Knowledge: &fakeKnowledge{passages: payePassages}, Search: search}, WithWebEnrichment(true))

	result := h.Handle(context.Background(), Request{Query: "VAT?"})
	answer := result.Answers[conversation.RouteTax]
	if !strings.HasPrefix(answer, "answer\n\nRecent updates from the web:") || !strings.Contains(answer, "Finance Act update") {
		t.Fatalf("unexpected enriched answer: %q", answer)
	}
	if gen.calls != 1 {
		t.Fatalf("enrichment must not add generation calls, got %d", gen.calls)
	}
	if result.Sources[len(result.Sources)-1].Kind != "web" {
		t.Fatalf("expected a web source, got %+v", result.Sources)
	}
}

func TestPayroll_UsesPayrollDomain(t *testing.T) {
	kb := &fakeKnowledge{passages: payePassages}
	gen := &fakeGenerator{}
	h := NewPayroll(Deps{Generator: gen, Knowledge: kb})

	result := h.Handle(context.Background(), Request{Query: "How is PAYE calculated?"})
	if kb.queries[0].Domain != knowledge.DomainPayroll || kb.queries[0].TopK != 3 {
		t.Fatalf("unexpected knowledge query: %+v", kb.queries[0])
	}
	if len(result.Answers) != 1 || result.Answers[conversation.RoutePayroll] != "answer" {
		t.Fatalf("unexpected answers: %+v", result.Answers)
	}
	if gen.calls != 1 {
		t.Fatalf("expected exactly one generation call, got %d", gen.calls)
	}
}

func TestPayroll_AssessmentShapesPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: func(system, _ string) (string, error) {
		if system == assessmentSystemPrompt {
			return `{"is_calculation_request": true, "needs_clarification": true, "missing_info": ["pension"], "user_mood": "impatient", "approach": "conditional"}`, nil
		}
		return "answer", nil
	}}
	h := NewPayroll(Deps{Generator: gen, Knowledge: &fakeKnowledge{passages: payePassages}}, WithAssessment(true))

	h.Handle(context.Background(), Request{Query: "just tell me my tax on 500k"})
	prompt := gen.lastPrompt()
	if !strings.Contains(prompt, "conditional answer") || !strings.Contains(prompt, "impatient") {
		t.Fatalf("assessment instructions missing from prompt:\n%s", prompt)
	}
}

func TestPayroll_AssessmentFallsBackToHeuristic(t *testing.T) {
	gen := &fakeGenerator{reply: func(system, _ string) (string, error) {
		if system == assessmentSystemPrompt {
			return "not json at all", nil
		}
		return "answer", nil
	}}
	h := NewPayroll(Deps{Generator: gen, Knowledge: &fakeKnowledge{passages: payePassages}}, WithAssessment(true))

	h.Handle(context.Background(), Request{Query: "My salary is ₦450,000 monthly"})
	if !strings.Contains(gen.lastPrompt(), "pension, nhf, rent") {
		t.Fatalf("expected heuristic collect instructions:\n%s", gen.lastPrompt())
	}
}

func TestPayroll_SwitchesToConditionalAfterRepeatedCollects(t *testing.T) {
	gen := &fakeGenerator{reply: func(system, _ string) (string, error) {
		if system == assessmentSystemPrompt {
			return `{"is_calculation_request": true, "needs_clarification": true, "missing_info": ["pension"], "user_mood": "engaged", "approach": "collect"}`, nil
		}
		return "answer", nil
	}}
	h := NewPayroll(Deps{Generator: gen, Knowledge: &fakeKnowledge{passages: payePassages}}, WithAssessment(true))

	prior := []conversation.Turn{
		{UserText: "PAYE on 300k?", Route: conversation.RoutePayroll},
		{UserText: "skip", Route: conversation.RoutePayroll},
	}
	h.Handle(context.Background(), Request{Query: "again, 300k", RecentTurns: prior})
	if !strings.Contains(gen.lastPrompt(), "conditional answer") {
		t.Fatalf("expected conditional instructions:\n%s", gen.lastPrompt())
	}
}

func TestDecodeAssessment(t *testing.T) {
	if _, ok := DecodeAssessment(`{"user_mood": "angry", "approach": "direct"}`); ok {
		t.Fatal("unknown mood must be rejected")
	}
	a, ok := DecodeAssessment("```json\n{\"user_mood\": \"Neutral\", \"approach\": \"direct\"}\n```")
	if !ok || a.UserMood != MoodNeutral || a.Approach != ApproachDirect {
		t.Fatalf("unexpected decode: %+v, %v", a, ok)
	}
}

func TestHeuristicAssessment(t *testing.T) {
	tests := []struct {
		query   string
		collect bool
	}{
		{"I earn 500k monthly", true},
		{"my salary is ₦250000", true},
		{"gross pay 1,200,000 per year", true},
		{"what is PAYE?", false},
		{"tax for 2025", false},
	}
	for _, tt := range tests {
		got := HeuristicAssessment(tt.query)
		if (got.Approach == ApproachCollect) != tt.collect {
			t.Errorf("HeuristicAssessment(%q) = %+v, collect=%v", tt.query, got, tt.collect)
		}
	}
}

func TestFinancial_WebOnly(t *testing.T) {
	kb := &fakeKnowledge{passages: payePassages}
	search := &fakeSearcher{results: []websearch.Result{{URL: "https://nairametrics.com/t-bills", Content: "T-bill yields at 18%"}}}
	gen := &fakeGenerator{}
	h := NewFinancial(Deps{Generator: gen, Knowledge: kb, Search: search})

	result := h.Handle(context.Background(), Request{Query: "Where should I save money?"})
	if len(kb.queries) != 0 {
		t.Fatal("financial handler must not query the knowledge provider")
	}
	if result.Answers[conversation.RouteFinancial] != "answer" {
		t.Fatalf("unexpected answers: %+v", result.Answers)
	}
	if !strings.Contains(gen.lastPrompt(), "T-bill yields at 18%") {
		t.Fatalf("web content missing from prompt:\n%s", gen.lastPrompt())
	}
}

func TestFinancial_NoResultsSaysSo(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewFinancial(Deps{Generator: gen, Search: &fakeSearcher{}})

	result := h.Handle(context.Background(), Request{Query: "crypto tips"})
	if !strings.Contains(result.Answers[conversation.RouteFinancial], "couldn't find recent information") {
		t.Fatalf("expected explicit statement, got %q", result.Answers[conversation.RouteFinancial])
	}
	if gen.calls != 0 {
		t.Fatal("no advice should be generated without sources")
	}
}

func TestCombined_RunsKnowledgeAndWebConcurrently(t *testing.T) {
	kb := &fakeKnowledge{passages: payePassages, delay: 100 * time.Millisecond}
	search := &fakeSearcher{results: []websearch.Result{{URL: "https://firs.gov.ng/x", Content: "New rates from 2026"}}, delay: 100 * time.Millisecond}
	gen := &fakeGenerator{}
	h := NewCombined(Deps{Generator: gen, Knowledge: kb, Search: search})

	started := time.Now()
	result := h.Handle(context.Background(), Request{Query: "How do the new tax laws change my PAYE?"})
	if elapsed := time.Since(started); elapsed > 190*time.Millisecond {
		t.Fatalf("branches did not run concurrently: %s", elapsed)
	}

	if kb.queries[0].Domain != knowledge.DomainCombined || kb.queries[0].TopK != 5 {
		t.Fatalf("unexpected knowledge query: %+v", kb.queries[0])
	}
	if result.Answers[conversation.RouteCombined] != "answer" {
		t.Fatalf("missing knowledge answer: %+v", result.Answers)
	}
	if !strings.Contains(result.Answers[conversation.RouteFinancial], "New rates from 2026") {
		t.Fatalf("missing web answer: %+v", result.Answers)
	}
	if gen.calls != 1 {
		t.Fatalf("combined handler must not synthesize itself, got %d generation calls", gen.calls)
	}
}

func TestCombined_WebFailureKeepsKnowledgeAnswer(t *testing.T) {
	h := NewCombined(Deps{
		Generator: &fakeGenerator{},
		Knowledge: &fakeKnowledge{passages: payePassages},
		Search:    &fakeSearcher{err: errors.New("quota exceeded")},
	})

	result := h.Handle(context.Background(), Request{Query: "q"})
	if len(result.Answers) != 1 || result.Answers[conversation.RouteCombined] != "answer" {
		t.Fatalf("expected only the knowledge answer, got %+v", result.Answers)
	}
}

func TestCombined_SearchTimeoutDoesNotBlock(t *testing.T) {
	h := NewCombined(Deps{
		Generator: &fakeGenerator{},
		Knowledge: &fakeKnowledge{passages: payePassages},
		Search:    &fakeSearcher{results: []websearch.Result{{Content: "late"}}, delay: time.Second},
	}, WithSearchTimeout(20*time.Millisecond))

	started := time.Now()
	result := h.Handle(context.Background(), Request{Query: "q"})
	if time.Since(started) > 500*time.Millisecond {
		t.Fatal("search timeout not applied")
	}
	if _, ok := result.Answers[conversation.RouteFinancial]; ok {
		t.Fatal("timed out search must not produce a web answer")
	}
}

func TestIsPidgin(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"Wetin be PAYE?", true},
		{"abeg, how much tax I go pay", true},
		{"Na so dem dey calculate am?", true},
		{"What is the VAT rate?", false},
		{"Does this fit my budget?", false},
		{"Abiodun wants to know about CIT", false},
	}
	for _, tt := range tests {
		if got := IsPidgin(tt.query); got != tt.want {
			t.Errorf("IsPidgin(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestPidginQueryChangesLanguageInstruction(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewTax(Deps{Generator: gen, Knowledge: &fakeKnowledge{passages: payePassages}})

	h.Handle(context.Background(), Request{Query: "Wetin be VAT?"})
	if !strings.Contains(gen.lastPrompt(), "Nigerian Pidgin") {
		t.Fatalf("expected pidgin instruction:\n%s", gen.lastPrompt())
	}
}
