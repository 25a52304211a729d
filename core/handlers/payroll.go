package handlers

import (
	"context"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/knowledge"
)

const (
	payrollTopK = 3

	// maxCollectRounds is how many payroll turns may ask for missing details
	// before the handler switches to conditional answers.
	maxCollectRounds = 2
)

var _ Handler = (*Payroll)(nil)

// Payroll answers PAYE and payroll questions from the payroll knowledge
// domain. With assessment enabled it first classifies the request to decide
// whether to collect missing details, estimate, or answer directly.
type Payroll struct {
	base
}

// NewPayroll returns the payroll handler.
func NewPayroll(deps Deps, opts ...Option) *Payroll {
	return &Payroll{base: newBase(deps, opts)}
}

// Handle answers a payroll question, asking for missing salary details when the assessment calls for it.
func (h *Payroll) Handle(ctx context.Context, request Request) Result {
	var extra []string
	if h.cfg.assessment {
		a := h.assess(ctx, request)
		if a.Approach == ApproachCollect && payrollTurnsAsked(request.RecentTurns) >= maxCollectRounds {
			a.Approach = ApproachConditional
		}
		extra = a.instructions()
	}

	answer, provider, sources, degraded := h.groundedAnswer(ctx, request, knowledge.DomainPayroll, payrollTopK, payrollSystemPrompt, extra)
	answer, webSrc := h.enrich(ctx, request.Query, answer)

	result := Result{
		Sources:  append(sources, webSrc...),
		Provider: provider,
		Degraded: degraded,
	}
	result.set(conversation.RoutePayroll, answer)
	return result
}
