// Package prompts provides example questions shown to users before they start
// a conversation. The list is generated once by the model and cached.
package prompts

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/core/parse"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/observability"
)

const (
	// Count is the number of prompts returned.
	Count = 8

	DefaultTTL = time.Hour
	// DefaultGenerationTimeout bounds one generation call.
	DefaultGenerationTimeout = 30 * time.Second

	fallbackTTL = 5 * time.Minute

	cacheKey = "suggested-prompts"
)

// Fallback is served when generation fails.
var Fallback = []string{
	"What is VAT in Nigeria?",
	"Calculate PAYE on ₦200,000 monthly salary",
	"Best investment options in Nigeria?",
	"How does pension contribution reduce my tax?",
	"Who is tax exempt under the 2026 policy?",
	"What deductions can reduce my PAYE?",
	"How to save money while paying taxes?",
	"Explain the new tax reform and its impact on salaries",
}

const generationPrompt = `Generate 8 diverse example questions for a Nigerian tax and financial assistant.
Cover all four areas: tax policy (VAT, company tax, exemptions, reliefs), PAYE calculations
(salary tax, deductions), personal finance (investments, savings, budgeting), and questions
that combine tax policy with PAYE. Keep them practical for everyday Nigerians, use realistic
amounts (₦150k, ₦300k, ₦500k monthly), mix simple and complex, and include Nigeria Tax Act
2025/2026 topics.

Respond with ONLY a JSON array of 8 question strings.`

// Suggester returns cached example prompts.
type Suggester struct {
	generator fallback.Generator
	cache     *cache.Cache
	ttl       time.Duration
	timeout   time.Duration
	group     singleflight.Group
	observer  observability.Provider
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithTTL sets how long a generated list is served.
func WithTTL(ttl time.Duration) Option {
	return func(s *Suggester) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithGenerationTimeout bounds the shared generation call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(s *Suggester) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver attaches an observability provider.
func WithObserver(observer observability.Provider) Option {
	return func(s *Suggester) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// New returns a Suggester. A nil generator always serves Fallback.
func New(generator fallback.Generator, opts ...Option) *Suggester {
	s := &Suggester{
		generator: generator,
		ttl:       DefaultTTL,
		timeout:   DefaultGenerationTimeout,
		observer:  observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.New(s.ttl, 2*s.ttl)
	return s
}

// Suggest returns Count example questions. It never fails.
func (s *Suggester) Suggest(ctx context.Context) []string {
	if val, found := s.cache.Get(cacheKey); found {
		if list, ok := val.([]string); ok {
			return clone(list)
		}
	}
	if s.generator == nil {
		return clone(Fallback)
	}

	// Concurrent misses share one generation call. It outlives the caller
	// that started it, so one disconnect cannot cache Fallback for everyone.
	val, _, _ := s.group.Do(cacheKey, func() (any, error) {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		list, err := s.generate(genCtx)
		if err != nil {
			s.observer.Warn(ctx, "prompt generation failed, serving fallback list", observability.Error(err))
			s.cache.Set(cacheKey, Fallback, fallbackTTL)
			return Fallback, nil
		}
		s.cache.Set(cacheKey, list, cache.DefaultExpiration)
		return list, nil
	})
	return clone(val.([]string))
}

func (s *Suggester) generate(ctx context.Context) ([]string, error) {
	text, _, err := s.generator.GenerateRequest(ctx, ai.NewUserRequest("", generationPrompt))
	if err != nil {
		return nil, err
	}
	return Decode(text)
}

// Decode parses a JSON array of questions, dropping blanks and duplicates and
// padding from Fallback up to Count.
func Decode(text string) ([]string, error) {
	raw, err := parse.ParseStringAs[[]string](text)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, Count)
	out := make([]string, 0, Count)
	add := func(q string) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || len(out) == Count {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}

	for _, q := range raw {
		add(q)
	}
	if len(out) == 0 {
		return nil, parse.ErrEmptyContent
	}
	for _, q := range Fallback {
		add(q)
	}
	return out, nil
}

func clone(list []string) []string {
	return append([]string(nil), list...)
}
