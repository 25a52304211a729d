// Package synth merges the domain answers of one turn into the final reply.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/observability"
)

// DegradedAnswer is returned when no handler produced anything.
const DegradedAnswer = "I'm sorry, I couldn't put together an answer right now. " +
	"Please try again in a moment, or rephrase your question."

// sectionLabels are the headings used by the labeled fallback, in canonical
// route order.
var sectionLabels = []struct {
	route conversation.RouteTag
	label string
}{
	{conversation.RouteTax, "TAX POLICY INFORMATION"},
	{conversation.RoutePayroll, "PAYE CALCULATION DETAILS"},
	{conversation.RouteCombined, "TAX AND PAYE INFORMATION"},
	{conversation.RouteFinancial, "RECENT FINANCIAL INFORMATION"},
}

const systemPrompt = `You are a helpful Nigerian tax assistant. You receive several partial answers to
one user question. Merge them into ONE coherent answer:
1. Combine the information naturally and remove redundancy.
2. Keep every figure and calculation that is relevant; show calculations clearly.
3. Keep the tone friendly and relatable for young Nigerians without compromising facts.
4. Answer in the same language as the user (Nigerian Pidgin if they wrote in Pidgin).`

const webPreference = "5. When sections disagree on rates, thresholds or dates, prefer the RECENT FINANCIAL " +
	"INFORMATION section (it comes from live web sources) and use the other sections for explanation."

// Output is the synthesized reply.
type Output struct {
	Answer      string
	Provider    string
	Synthesized bool
	Degraded    bool
}

// Synthesizer merges answers with at most one generation call.
type Synthesizer struct {
	generator    fallback.Generator
	historyTurns int
	observer     observability.Provider
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithHistoryTurns sets how many prior turns appear in the merge prompt.
func WithHistoryTurns(n int) Option {
	return func(s *Synthesizer) {
		if n >= 0 {
			s.historyTurns = n
		}
	}
}

// WithObserver attaches an observability provider.
func WithObserver(observer observability.Provider) Option {
	return func(s *Synthesizer) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// New returns a Synthesizer.
func New(generator fallback.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator:    generator,
		historyTurns: 5,
		observer:     observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns the final answer for answers:
//   - none: DegradedAnswer
//   - one: that answer verbatim, without a generation call
//   - several: one merge call; if it fails, a labeled concatenation
func (s *Synthesizer) Synthesize(ctx context.Context, query string, recent []conversation.Turn, answers map[conversation.RouteTag]string) Output {
	sections := ordered(answers)

	switch len(sections) {
	case 0:
		return Output{Answer: DegradedAnswer, Degraded: true}
	case 1:
		return Output{Answer: sections[0].text}
	}

	system := systemPrompt
	if strings.TrimSpace(answers[conversation.RouteFinancial]) != "" {
		system += "\n" + webPreference
	}

	text, provider, err := s.generator.GenerateRequest(ctx, ai.NewUserRequest(system, buildPrompt(query, tail(recent, s.historyTurns), sections)))
	if err != nil {
		s.observer.Warn(ctx, "synthesis failed, concatenating answers",
			observability.Int(observability.AttrResultCount, len(sections)),
			observability.Error(err),
		)
		return Output{Answer: Concatenate(answers), Degraded: true}
	}
	return Output{Answer: text, Provider: provider, Synthesized: true}
}

type section struct {
	label string
	text  string
}

func ordered(answers map[conversation.RouteTag]string) []section {
	var out []section
	for _, sl := range sectionLabels {
		if text := strings.TrimSpace(answers[sl.route]); text != "" {
			out = append(out, section{label: sl.label, text: text})
		}
	}
	return out
}

// Concatenate is the deterministic merge used when synthesis is unavailable.
func Concatenate(answers map[conversation.RouteTag]string) string {
	sections := ordered(answers)
	if len(sections) == 0 {
		return DegradedAnswer
	}
	if len(sections) == 1 {
		return sections[0].text
	}

	var b strings.Builder
	b.WriteString("Based on Nigerian tax regulations:")
	for _, sec := range sections {
		fmt.Fprintf(&b, "\n\n%s:\n%s", sec.label, sec.text)
	}
	return b.String()
}

func buildPrompt(query string, recent []conversation.Turn, sections []section) string {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("PREVIOUS CONVERSATION:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n",
				utils.TruncateString(t.UserText, 600),
				utils.TruncateString(t.AssistantText, 600))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "USER'S ORIGINAL QUESTION:\n%s\n", query)
	for _, sec := range sections {
		fmt.Fprintf(&b, "\n%s:\n%s\n", sec.label, sec.text)
	}
	b.WriteString("\nSYNTHESIZED ANSWER:")
	return b.String()
}

func tail(turns []conversation.Turn, n int) []conversation.Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	return turns[max(len(turns)-n, 0):]
}
