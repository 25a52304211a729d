package handlers

import (
	"context"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/knowledge"
)

const taxTopK = 3

var _ Handler = (*Tax)(nil)

// Tax answers general tax policy questions from the tax knowledge domain.
type Tax struct {
	base
}

// NewTax returns the tax policy handler.
func NewTax(deps Deps, opts ...Option) *Tax {
	return &Tax{base: newBase(deps, opts)}
}

// Handle answers a tax question from the tax knowledge base.
func (h *Tax) Handle(ctx context.Context, request Request) Result {
	answer, provider, sources, degraded := h.groundedAnswer(ctx, request, knowledge.DomainTax, taxTopK, taxSystemPrompt, nil)
	answer, webSrc := h.enrich(ctx, request.Query, answer)

	result := Result{
		Sources:  append(sources, webSrc...),
		Provider: provider,
		Degraded: degraded,
	}
	result.set(conversation.RouteTax, answer)
	return result
}
