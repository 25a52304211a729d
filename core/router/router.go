package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/core/parse"
	"github.com/leofalp/taxassist/internal/metrics"
	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/observability"
)

const (
	// DefaultHistoryWindow is the number of recent turns shown to the model.
	DefaultHistoryWindow = 4

	// DefaultRoute is used whenever the model output cannot be trusted.
	DefaultRoute = conversation.RouteCombined

	maxHistoryChars = 600
)

const systemPrompt = `You are the routing component of a Nigerian tax and financial assistant.
Reply with exactly one label and nothing else. Allowed labels:
- payroll: PAYE calculations, salary tax, employee deductions, payroll questions
- tax: general tax policy, VAT, company income tax, tax laws, regulations, reliefs
- financial: personal finance, investments, savings, budgeting, market rates
- combined: questions that need both tax policy and PAYE information

Rules:
1. If the user is answering a question or following up on the previous topic, keep the last route.
2. Switch route only when the user asks about a clearly different topic.
3. When the user signals they are done with PAYE questions ("skip", "that's all"), use payroll.`

// Classifier maps a query to a RouteTag.
type Classifier struct {
	generator fallback.Generator
	window    int
	observer  observability.Provider
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithHistoryWindow sets how many recent turns are included in the prompt.
func WithHistoryWindow(n int) Option {
	return func(c *Classifier) {
		if n >= 0 {
			c.window = n
		}
	}
}

// WithObserver attaches an observability provider.
func WithObserver(observer observability.Provider) Option {
	return func(c *Classifier) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// New returns a classifier backed by generator.
func New(generator fallback.Generator, opts ...Option) *Classifier {
	c := &Classifier{
		generator: generator,
		window:    DefaultHistoryWindow,
		observer:  observability.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the route for query. It never fails: generation errors and
// unrecognised output both produce DefaultRoute.
func (c *Classifier) Classify(ctx context.Context, query string, recent []conversation.Turn, lastRoute conversation.RouteTag) conversation.RouteTag {
	prompt := buildPrompt(query, tail(recent, c.window), lastRoute)

	text, provider, err := c.generator.GenerateRequest(ctx, ai.NewUserRequest(systemPrompt, prompt))
	if err != nil {
		c.observer.Warn(ctx, "route classification failed, using default route",
			observability.String(observability.AttrRoute, DefaultRoute.String()),
			observability.Error(err),
		)
		metrics.RouteDecisions.WithLabelValues(DefaultRoute.String(), "default").Inc()
		return DefaultRoute
	}

	route, ok := Decode(text)
	if !ok {
		c.observer.Warn(ctx, "unrecognised route label, using default route",
			observability.String("label", utils.TruncateString(text, 80)),
			observability.String(observability.AttrLLMProvider, provider),
		)
		metrics.RouteDecisions.WithLabelValues(DefaultRoute.String(), "default").Inc()
		return DefaultRoute
	}

	c.observer.Debug(ctx, "query routed",
		observability.String(observability.AttrRoute, route.String()),
		observability.String(observability.AttrLLMProvider, provider),
	)
	metrics.RouteDecisions.WithLabelValues(route.String(), "model").Inc()
	return route
}

type routeReply struct {
	Route string `json:"route"`
}

// Decode parses model output strictly: either a JSON object {"route": label}
// or a single bare label token (quotes and trailing punctuation tolerated).
// Free text that merely mentions a label is rejected.
func Decode(text string) (conversation.RouteTag, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return conversation.RouteUnset, false
	}

	if strings.ContainsAny(trimmed, "{`") {
		reply, err := parse.ParseStringAs[routeReply](trimmed)
		if err != nil {
			return conversation.RouteUnset, false
		}
		return conversation.ParseRouteTag(reply.Route)
	}

	token := strings.Trim(trimmed, "\"'.!*` \t\r\n")
	if strings.ContainsAny(token, " \t\r\n") {
		return conversation.RouteUnset, false
	}
	return conversation.ParseRouteTag(token)
}

func buildPrompt(query string, recent []conversation.Turn, lastRoute conversation.RouteTag) string {
	var b strings.Builder

	b.WriteString("CONVERSATION HISTORY:\n")
	if len(recent) == 0 {
		b.WriteString("No previous conversation.\n")
	}
	for _, turn := range recent {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n",
			utils.TruncateString(turn.UserText, maxHistoryChars),
			utils.TruncateString(turn.AssistantText, maxHistoryChars))
	}

	b.WriteString("\nLAST ROUTE USED: ")
	if lastRoute.Valid() {
		b.WriteString(lastRoute.String())
	} else {
		b.WriteString("none (first message)")
	}

	fmt.Fprintf(&b, "\n\nCURRENT USER QUERY:\n%s\n\nROUTE:", query)
	return b.String()
}

func tail(turns []conversation.Turn, n int) []conversation.Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	return turns[max(len(turns)-n, 0):]
}
