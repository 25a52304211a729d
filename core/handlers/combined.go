package handlers

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/knowledge"
	"github.com/leofalp/taxassist/providers/websearch"
)

const (
	combinedTopK    = 5
	combinedResults = 3
)

var _ Handler = (*Combined)(nil)

// Combined answers from both knowledge domains while a web search runs
// concurrently. The knowledge answer is stored under RouteCombined and the web
// findings, when there are any, under RouteFinancial; the synthesizer merges
// the two.
type Combined struct {
	base
}

// NewCombined returns the combined handler.
func NewCombined(deps Deps, opts ...Option) *Combined {
	return &Combined{base: newBase(deps, opts)}
}

// Handle runs the knowledge lookup and the web search concurrently and merges both answers.
func (h *Combined) Handle(ctx context.Context, request Request) Result {
	var (
		answer   string
		provider string
		sources  []conversation.Source
		degraded bool
		web      []websearch.Result
	)

	// Neither branch returns an error: failures are folded into the answers.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		answer, provider, sources, degraded = h.groundedAnswer(gctx, request, knowledge.DomainCombined, combinedTopK, combinedSystemPrompt, nil)
		return nil
	})
	g.Go(func() error {
		web, _ = h.search(gctx, request.Query, combinedResults)
		return nil
	})
	_ = g.Wait()

	result := Result{
		Sources:  sources,
		Provider: provider,
		Degraded: degraded,
	}
	result.set(conversation.RouteCombined, answer)
	if len(web) > 0 {
		result.set(conversation.RouteFinancial, websearch.Format(web))
		result.Sources = append(result.Sources, webSources(web)...)
	}
	return result
}
