package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/core/handlers"
	"github.com/leofalp/taxassist/core/prompts"
	"github.com/leofalp/taxassist/core/router"
	"github.com/leofalp/taxassist/core/synth"
	"github.com/leofalp/taxassist/internal/metrics"
	"github.com/leofalp/taxassist/internal/threadlock"
	"github.com/leofalp/taxassist/patterns/graph"
	"github.com/leofalp/taxassist/providers/knowledge"
	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/observability"
	"github.com/leofalp/taxassist/providers/websearch"
)

var (
	// ErrInvalidInput is returned for requests rejected before any work.
	ErrInvalidInput = errors.New("orchestrator: invalid input")

	// ErrThreadNotFound is returned when a thread has no committed turns.
	ErrThreadNotFound = errors.New("orchestrator: thread not found")
)

// TimedOutAnswer is committed when the request deadline expires before any
// domain answer exists.
const TimedOutAnswer = "I'm sorry, this took longer than expected and I couldn't finish your answer. " +
	"Please ask again."

// Classifier picks the route of a query.
type Classifier interface {
	Classify(ctx context.Context, query string, recent []conversation.Turn, lastRoute conversation.RouteTag) conversation.RouteTag
}

// Merger turns domain answers into the final reply.
type Merger interface {
	Synthesize(ctx context.Context, query string, recent []conversation.Turn, answers map[conversation.RouteTag]string) synth.Output
}

// Deps are the orchestrator's collaborators. Generator and Store are
// required. Knowledge and Search may be nil. Locker defaults to an
// in-process lock. Router, Handlers, Synthesizer and Prompts are built from
// Generator when nil; a partial Handlers map is completed with defaults.
type Deps struct {
	Generator fallback.Generator
	Store     memory.Store
	Knowledge knowledge.Provider
	Search    websearch.Searcher
	Locker    threadlock.Locker

	Router      Classifier
	Handlers    map[conversation.RouteTag]handlers.Handler
	Synthesizer Merger
	Prompts     *prompts.Suggester
}

// ChatInput is one user message.
type ChatInput struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Query    string `json:"query"`
}

// ChatResult is the reply to one user message.
type ChatResult struct {
	Answer       string                `json:"answer"`
	RouteUsed    conversation.RouteTag `json:"route_used"`
	ProviderUsed string                `json:"provider_used,omitempty"`
	Sources      []conversation.Source `json:"sources,omitempty"`
	ThreadID     string                `json:"thread_id"`
	MemorySaved  bool                  `json:"memory_saved"`
	Degraded     bool                  `json:"degraded"`
}

// Orchestrator runs conversation turns. It is safe for concurrent use and is
// meant to be built once per process.
type Orchestrator struct {
	store    memory.Store
	locker   threadlock.Locker
	prompts  *prompts.Suggester
	flow     *graph.Graph[*conversation.State]
	config   config
	observer observability.Provider
}

// New validates deps and builds the state machine.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if deps.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	needsGenerator := deps.Router == nil || deps.Synthesizer == nil || deps.Prompts == nil ||
		len(deps.Handlers) < len(conversation.Routes)
	if deps.Generator == nil && needsGenerator {
		return nil, errors.New("orchestrator: generator is required")
	}

	if deps.Locker == nil {
		deps.Locker = threadlock.NewLocal()
	}
	if deps.Router == nil {
		deps.Router = router.New(deps.Generator,
			append([]router.Option{router.WithObserver(cfg.observer)}, cfg.routerOpts...)...)
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = synth.New(deps.Generator,
			append([]synth.Option{synth.WithObserver(cfg.observer)}, cfg.synthOpts...)...)
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.New(deps.Generator,
			append([]prompts.Option{prompts.WithObserver(cfg.observer)}, cfg.promptOpts...)...)
	}
	deps.Handlers = completeHandlers(deps, cfg)

	o := &Orchestrator{
		store:    deps.Store,
		locker:   deps.Locker,
		prompts:  deps.Prompts,
		config:   cfg,
		observer: cfg.observer,
	}

	flow, err := o.buildGraph(deps)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build graph: %w", err)
	}
	o.flow = flow
	return o, nil
}

func completeHandlers(deps Deps, cfg config) map[conversation.RouteTag]handlers.Handler {
	out := make(map[conversation.RouteTag]handlers.Handler, len(conversation.Routes))
	for route, h := range deps.Handlers {
		out[route] = h
	}

	hdeps := handlers.Deps{Generator: deps.Generator, Knowledge: deps.Knowledge, Search: deps.Search}
	hopts := append([]handlers.Option{handlers.WithObserver(cfg.observer)}, cfg.handlerOpts...)
	defaults := map[conversation.RouteTag]func() handlers.Handler{
		conversation.RouteTax:       func() handlers.Handler { return handlers.NewTax(hdeps, hopts...) },
		conversation.RoutePayroll:   func() handlers.Handler { return handlers.NewPayroll(hdeps, hopts...) },
		conversation.RouteFinancial: func() handlers.Handler { return handlers.NewFinancial(hdeps, hopts...) },
		conversation.RouteCombined:  func() handlers.Handler { return handlers.NewCombined(hdeps, hopts...) },
	}
	for route, build := range defaults {
		if out[route] == nil {
			out[route] = build()
		}
	}
	return out
}

// Chat answers one query and commits the turn to the thread's history. The
// only error it returns is ErrInvalidInput; every other failure degrades the
// answer or clears MemorySaved.
func (o *Orchestrator) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	key, query, err := o.validate(input)
	if err != nil {
		metrics.RecordChat("invalid", false, err)
		return nil, err
	}

	ctx, span := o.observer.StartSpan(ctx, observability.SpanOrchestratorChat,
		observability.String(observability.AttrUserID, key.UserID),
		observability.String(observability.AttrThreadID, key.ThreadID),
	)
	defer span.End()

	if o.config.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.requestTimeout)
		defer cancel()
	}

	state := conversation.NewState(key, query)

	// The lock wait is detached from the request deadline: a request that
	// times out while queued still commits its turn in order.
	lockCtx, cancelLock := context.WithTimeout(context.WithoutCancel(ctx), o.config.lockTimeout)
	unlock, lockErr := o.locker.Lock(lockCtx, key.String())
	cancelLock()
	if lockErr != nil {
		// Without the lock the turn cannot be ordered; answer without memory.
		o.observer.Warn(ctx, "thread lock unavailable, answering without memory",
			observability.String(observability.AttrThreadID, key.String()),
			observability.Error(lockErr),
		)
		span.AddEvent(observability.EventStatelessMode)
		state.Stateless = true
	} else {
		defer unlock()
	}

	if _, runErr := o.flow.Run(ctx, state); runErr != nil {
		// Stages never fail on their own; this is the deadline or
		// cancellation cutting the flow short.
		o.observer.Warn(ctx, "chat flow interrupted",
			observability.String(observability.AttrThreadID, key.String()),
			observability.Error(runErr),
		)
	}

	route := committedRoute(state)
	span.SetAttributes(
		observability.String(observability.AttrRoute, route.String()),
		observability.Bool(observability.AttrMemorySaved, state.MemorySaved),
	)
	metrics.RecordChat(route.String(), state.Degraded, nil)

	return &ChatResult{
		Answer:       state.Answer,
		RouteUsed:    route,
		ProviderUsed: state.ActiveProvider,
		Sources:      state.Sources,
		ThreadID:     key.ThreadID,
		MemorySaved:  state.MemorySaved,
		Degraded:     state.Degraded,
	}, nil
}

func (o *Orchestrator) validate(input ChatInput) (conversation.ThreadKey, string, error) {
	query := strings.TrimSpace(input.Query)
	userID := strings.TrimSpace(input.UserID)
	threadID := strings.TrimSpace(input.ThreadID)
	if threadID == "" {
		threadID = conversation.DefaultThreadID
	}

	switch {
	case userID == "":
		return conversation.ThreadKey{}, "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case utf8.RuneCountInString(threadID) > MaxThreadIDLength:
		return conversation.ThreadKey{}, "", fmt.Errorf("%w: thread id exceeds %d characters", ErrInvalidInput, MaxThreadIDLength)
	case query == "":
		return conversation.ThreadKey{}, "", fmt.Errorf("%w: query is empty", ErrInvalidInput)
	case utf8.RuneCountInString(query) > o.config.maxQueryRunes:
		return conversation.ThreadKey{}, "", fmt.Errorf("%w: query exceeds %d characters", ErrInvalidInput, o.config.maxQueryRunes)
	}
	return conversation.ThreadKey{UserID: userID, ThreadID: threadID}, query, nil
}

// SuggestPrompts returns example questions for a new conversation.
func (o *Orchestrator) SuggestPrompts(ctx context.Context) []string {
	return o.prompts.Suggest(ctx)
}

// Close releases the store.
func (o *Orchestrator) Close() error {
	if err := o.store.Close(); err != nil {
		return fmt.Errorf("orchestrator: close store: %w", err)
	}
	return nil
}

func committedRoute(state *conversation.State) conversation.RouteTag {
	if state.Route.Valid() {
		return state.Route
	}
	return conversation.RouteCombined
}
