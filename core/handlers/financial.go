package handlers

import (
	"context"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/observability"
	"github.com/leofalp/taxassist/providers/websearch"
)

const financialResults = 5

var _ Handler = (*Financial)(nil)

// Financial answers personal-finance questions from live web search only.
// It never answers without sources.
type Financial struct {
	base
}

// NewFinancial returns the financial advice handler.
func NewFinancial(deps Deps, opts ...Option) *Financial {
	return &Financial{base: newBase(deps, opts)}
}

// Handle answers a market or investment question from web search results.
func (h *Financial) Handle(ctx context.Context, request Request) Result {
	var result Result

	results, err := h.search(ctx, request.Query, financialResults)
	if err != nil || len(results) == 0 {
		result.Degraded = err != nil
		result.set(conversation.RouteFinancial, noWebInformationAnswer)
		return result
	}

	formatted := websearch.Format(results)
	result.Sources = webSources(results)

	prompt := webPrompt(request, tailTurns(request.RecentTurns, h.cfg.historyTurns), formatted)
	text, provider, err := h.generate(ctx, financialSystemPrompt, prompt)
	if err != nil {
		h.cfg.observer.Warn(ctx, "financial advice generation failed, returning sources", observability.Error(err))
		result.Degraded = true
		result.set(conversation.RouteFinancial,
			"I found some information from financial sources, but couldn't summarise it right now. "+
				"Please review the sources below:\n\n"+formatted)
		return result
	}

	result.Provider = provider
	result.set(conversation.RouteFinancial, text)
	return result
}
