package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/knowledge"
	"github.com/leofalp/taxassist/providers/observability"
	"github.com/leofalp/taxassist/providers/websearch"
)

const (
	DefaultKnowledgeTimeout = 10 * time.Second
	DefaultSearchTimeout    = 10 * time.Second
	DefaultHistoryTurns     = 5

	sourceExcerptRunes = 200
)

// Handler produces domain answers for a query.
type Handler interface {
	Handle(ctx context.Context, request Request) Result
}

// Request is the input to a handler.
type Request struct {
	Query       string
	RecentTurns []conversation.Turn
}

// Result carries the answers a handler produced, keyed by route. Blank answers
// are never stored.
type Result struct {
	Answers  map[conversation.RouteTag]string
	Sources  []conversation.Source
	Provider string
	Degraded bool
}

func (r *Result) set(route conversation.RouteTag, answer string) {
	if strings.TrimSpace(answer) == "" {
		return
	}
	if r.Answers == nil {
		r.Answers = make(map[conversation.RouteTag]string)
	}
	r.Answers[route] = answer
}

// Deps are the collaborators shared by every handler. Knowledge and Search
// may be nil; the handlers then behave as if nothing was found.
type Deps struct {
	Generator fallback.Generator
	Knowledge knowledge.Provider
	Search    websearch.Searcher
}

type config struct {
	knowledgeTimeout time.Duration
	searchTimeout    time.Duration
	historyTurns     int
	webEnrichment    bool
	assessment       bool
	searchDomains    []string
	observer         observability.Provider
}

// Option configures a handler.
type Option func(*config)

// WithKnowledgeTimeout bounds each retrieval call.
func WithKnowledgeTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.knowledgeTimeout = d
		}
	}
}

// WithSearchTimeout bounds each web search call.
func WithSearchTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.searchTimeout = d
		}
	}
}

// WithHistoryTurns sets how many prior turns are shown to generation prompts.
func WithHistoryTurns(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.historyTurns = n
		}
	}
}

// WithWebEnrichment makes Tax and Payroll append recent web findings to their
// answers.
func WithWebEnrichment(enabled bool) Option {
	return func(c *config) {
		c.webEnrichment = enabled
	}
}

// WithAssessment enables the payroll calculation assessment call.
func WithAssessment(enabled bool) Option {
	return func(c *config) {
		c.assessment = enabled
	}
}

// WithSearchDomains restricts web search to the given domains.
func WithSearchDomains(domains []string) Option {
	return func(c *config) {
		c.searchDomains = domains
	}
}

// WithObserver attaches an observability provider.
func WithObserver(observer observability.Provider) Option {
	return func(c *config) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// base holds what every handler needs.
type base struct {
	deps Deps
	cfg  config
}

func newBase(deps Deps, opts []Option) base {
	cfg := config{
		knowledgeTimeout: DefaultKnowledgeTimeout,
		searchTimeout:    DefaultSearchTimeout,
		historyTurns:     DefaultHistoryTurns,
		observer:         observability.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return base{deps: deps, cfg: cfg}
}

var errNoKnowledgeProvider = errors.New("handlers: no knowledge provider configured")

func (b *base) retrieve(ctx context.Context, domain, text string, topK int) ([]knowledge.Passage, error) {
	if b.deps.Knowledge == nil {
		return nil, errNoKnowledgeProvider
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.knowledgeTimeout)
	defer cancel()

	passages, err := b.deps.Knowledge.Retrieve(ctx, knowledge.Query{Text: text, Domain: domain, TopK: topK})
	if err != nil {
		b.cfg.observer.Warn(ctx, "knowledge retrieval failed",
			observability.String(observability.AttrKnowledgeDomain, domain),
			observability.Error(err),
		)
		return nil, err
	}
	b.cfg.observer.Debug(ctx, "knowledge retrieved",
		observability.String(observability.AttrKnowledgeDomain, domain),
		observability.Int(observability.AttrResultCount, len(passages)),
	)
	return passages, nil
}

// search returns nil results without error when no searcher is configured.
func (b *base) search(ctx context.Context, text string, n int) ([]websearch.Result, error) {
	if b.deps.Search == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.searchTimeout)
	defer cancel()

	results, err := b.deps.Search.Search(ctx, websearch.Query{Text: text, MaxResults: n, IncludeDomains: b.cfg.searchDomains})
	if err != nil {
		b.cfg.observer.Warn(ctx, "web search failed", observability.Error(err))
		return nil, err
	}
	b.cfg.observer.Debug(ctx, "web search completed",
		observability.Int(observability.AttrResultCount, len(results)),
	)
	return results, nil
}

func (b *base) generate(ctx context.Context, system, prompt string) (string, string, error) {
	return b.deps.Generator.GenerateRequest(ctx, ai.NewUserRequest(system, prompt))
}

// groundedAnswer retrieves passages for domain and generates an answer from
// them. It never fails: see the package documentation for the fallbacks.
func (b *base) groundedAnswer(ctx context.Context, request Request, domain string, topK int, system string, extra []string) (answer, provider string, sources []conversation.Source, degraded bool) {
	passages, err := b.retrieve(ctx, domain, request.Query, topK)
	if err != nil || len(passages) == 0 {
		return noInformationAnswer, "", nil, err != nil
	}
	sources = passageSources(passages)

	prompt := documentPrompt(request, tailTurns(request.RecentTurns, b.cfg.historyTurns), formatPassages(passages), extra)
	text, provider, err := b.generate(ctx, system, prompt)
	if err != nil {
		b.cfg.observer.Warn(ctx, "answer generation failed, returning excerpts",
			observability.String(observability.AttrKnowledgeDomain, domain),
			observability.Error(err),
		)
		return excerptAnswer(passages), "", sources, true
	}
	return text, provider, sources, false
}

// enrich appends recent web findings to answer when enrichment is on.
func (b *base) enrich(ctx context.Context, query, answer string) (string, []conversation.Source) {
	if !b.cfg.webEnrichment || answer == noInformationAnswer {
		return answer, nil
	}
	results, err := b.search(ctx, query, 3)
	if err != nil || len(results) == 0 {
		return answer, nil
	}

	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\nRecent updates from the web:")
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&sb, "\n- %s: %s (%s)", title, utils.TruncateRunes(r.Content, sourceExcerptRunes), r.URL)
	}
	return sb.String(), webSources(results)
}

const (
	noInformationAnswer = "I couldn't find relevant information in the tax documents to answer your question. " +
		"Please try rephrasing, or ask about Nigerian tax policies, PAYE calculations or tax regulations."

	noWebInformationAnswer = "I couldn't find recent information from Nigerian financial websites for your question. " +
		"Please try rephrasing, or ask about a specific topic such as savings, investments, budgeting or financial planning."
)

// excerptAnswer is the degraded answer used when every generation backend
// failed but passages were retrieved.
func excerptAnswer(passages []knowledge.Passage) string {
	var b strings.Builder
	b.WriteString("I couldn't generate a full answer right now. Here is what the relevant documents say:\n")
	for _, p := range passages {
		fmt.Fprintf(&b, "\n- %s", utils.TruncateRunes(strings.TrimSpace(p.Text), 400))
		if p.Source != "" {
			fmt.Fprintf(&b, " (source: %s)", p.Source)
		}
	}
	return b.String()
}

func passageSources(passages []knowledge.Passage) []conversation.Source {
	sources := make([]conversation.Source, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, conversation.Source{
			Text:   utils.TruncateRunes(p.Text, sourceExcerptRunes),
			Origin: p.Source,
			Kind:   p.Kind,
			Score:  p.Score,
		})
	}
	return sources
}

func webSources(results []websearch.Result) []conversation.Source {
	sources := make([]conversation.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, conversation.Source{
			Text:   utils.TruncateRunes(r.Content, sourceExcerptRunes),
			Origin: r.URL,
			Kind:   "web",
			Score:  r.Score,
		})
	}
	return sources
}

func tailTurns(turns []conversation.Turn, n int) []conversation.Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	return turns[max(len(turns)-n, 0):]
}
