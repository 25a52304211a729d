package handlers

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/parse"
	"github.com/leofalp/taxassist/providers/observability"
)

// Mood and approach values produced by the payroll assessment.
const (
	MoodEngaged   = "engaged"
	MoodImpatient = "impatient"
	MoodNeutral   = "neutral"

	ApproachCollect     = "collect"
	ApproachConditional = "conditional"
	ApproachDirect      = "direct"
)

// Assessment describes how a payroll question should be answered. It only
// changes prompt instructions.
type Assessment struct {
	IsCalculationRequest bool     `json:"is_calculation_request"`
	NeedsClarification   bool     `json:"needs_clarification"`
	MissingInfo          []string `json:"missing_info"`
	UserMood             string   `json:"user_mood"`
	Approach             string   `json:"approach"`
}

func (a Assessment) valid() bool {
	return slices.Contains([]string{MoodEngaged, MoodImpatient, MoodNeutral}, a.UserMood) &&
		slices.Contains([]string{ApproachCollect, ApproachConditional, ApproachDirect}, a.Approach)
}

const assessmentSystemPrompt = `You analyse Nigerian PAYE questions. Reply with a single JSON object:
{"is_calculation_request": bool, "needs_clarification": bool, "missing_info": [string],
 "user_mood": "engaged"|"impatient"|"neutral", "approach": "collect"|"conditional"|"direct"}
- is_calculation_request: the user wants an actual tax amount computed
- needs_clarification: a calculation was requested but salary or deductions are missing
- missing_info: any of salary, pension, nhf, nhis, rent, insurance, mortgage
- user_mood: engaged (cooperative), impatient (frustrated or repeating), neutral
- approach: collect (ask for missing info), conditional (give estimates), direct (answer now)`

// salaryPattern matches amounts such as 500k, ₦250,000 or 1,200,000.
var salaryPattern = regexp.MustCompile(`\d+\s*k\b|₦\s*\d+|\d{1,3}(,\d{3})+|\b\d{5,}\b`)

// HeuristicAssessment is the deterministic fallback used when the model
// assessment is unavailable or malformed.
func HeuristicAssessment(query string) Assessment {
	if salaryPattern.MatchString(strings.ToLower(query)) {
		return Assessment{
			IsCalculationRequest: true,
			NeedsClarification:   true,
			MissingInfo:          []string{"pension", "nhf", "rent"},
			UserMood:             MoodNeutral,
			Approach:             ApproachCollect,
		}
	}
	return Assessment{UserMood: MoodNeutral, Approach: ApproachDirect}
}

// DecodeAssessment strictly decodes model output; ok is false when the JSON
// is unusable or carries unknown enum values.
func DecodeAssessment(text string) (Assessment, bool) {
	a, err := parse.ParseStringAs[Assessment](text)
	if err != nil {
		return Assessment{}, false
	}
	a.UserMood = strings.ToLower(strings.TrimSpace(a.UserMood))
	a.Approach = strings.ToLower(strings.TrimSpace(a.Approach))
	if !a.valid() {
		return Assessment{}, false
	}
	return a, true
}

func (h *Payroll) assess(ctx context.Context, request Request) Assessment {
	prompt := fmt.Sprintf("CONVERSATION HISTORY:\n%s\nCURRENT USER QUERY:\n%s\n\nJSON:",
		orNone(formatHistory(tailTurns(request.RecentTurns, h.cfg.historyTurns))), request.Query)

	text, _, err := h.generate(ctx, assessmentSystemPrompt, prompt)
	if err != nil {
		h.cfg.observer.Debug(ctx, "payroll assessment unavailable, using heuristic", observability.Error(err))
		return HeuristicAssessment(request.Query)
	}
	a, ok := DecodeAssessment(text)
	if !ok {
		h.cfg.observer.Debug(ctx, "payroll assessment malformed, using heuristic")
		return HeuristicAssessment(request.Query)
	}
	return a
}

// instructions turns an assessment into extra prompt lines.
func (a Assessment) instructions() []string {
	var lines []string
	switch a.Approach {
	case ApproachCollect:
		if len(a.MissingInfo) > 0 {
			lines = append(lines, fmt.Sprintf(
				"The user wants a calculation but these details are missing: %s. Explain briefly why they matter "+
					"(deductions reduce tax), ask for the two or three most important ones, and note they can skip any that don't apply.",
				strings.Join(a.MissingInfo, ", ")))
		}
	case ApproachConditional:
		lines = append(lines, "The user does not want to provide more details. Give a conditional answer with worked "+
			"examples for realistic Nigerian salaries and show how pension, NHF and rent relief reduce the tax.")
	default:
		if a.IsCalculationRequest {
			lines = append(lines, "Compute the tax step by step from the figures the user provided.")
		}
	}
	if a.UserMood == MoodImpatient {
		lines = append(lines, "The user is impatient: lead with the answer and keep it short.")
	}
	return lines
}

func orNone(s string) string {
	if s == "" {
		return "No previous conversation\n"
	}
	return s
}

// payrollTurnsAsked counts prior payroll turns; used to avoid asking for the
// same details again and again.
func payrollTurnsAsked(turns []conversation.Turn) int {
	n := 0
	for _, t := range turns {
		if t.Route == conversation.RoutePayroll {
			n++
		}
	}
	return n
}
