package orchestrator

import (
	"context"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/core/handlers"
	"github.com/leofalp/taxassist/core/synth"
	"github.com/leofalp/taxassist/internal/metrics"
	"github.com/leofalp/taxassist/patterns/graph"
	"github.com/leofalp/taxassist/providers/observability"
)

// Node ids of the chat state machine; they double as stage metric labels.
const (
	nodeStart      = "start"
	nodeRoute      = "route"
	nodeTax        = "tax"
	nodePayroll    = "payroll"
	nodeFinancial  = "financial"
	nodeCombined   = "combined"
	nodeSynthesize = "synthesize"
	nodeCommit     = "commit"
)

var handlerNodes = []struct {
	id    string
	route conversation.RouteTag
}{
	{nodeTax, conversation.RouteTax},
	{nodePayroll, conversation.RoutePayroll},
	{nodeFinancial, conversation.RouteFinancial},
	{nodeCombined, conversation.RouteCombined},
}

type stateFn = graph.NodeExecutorFunc[*conversation.State]

func (o *Orchestrator) buildGraph(deps Deps) (*graph.Graph[*conversation.State], error) {
	builder := graph.NewGraphBuilder[*conversation.State](
		graph.WithObserver(o.observer),
		graph.WithFinallyTimeout(o.config.commitTimeout),
		graph.WithNodeHook(metrics.RecordStage),
	).
		AddNode(nodeStart, stateFn(o.start)).
		AddNode(nodeRoute, stateFn(o.classify(deps.Router))).
		AddNode(nodeSynthesize, stateFn(o.synthesize(deps.Synthesizer))).
		AddNode(nodeCommit, stateFn(o.commit)).
		AddEdge(nodeStart, nodeRoute)

	for _, hn := range handlerNodes {
		builder.AddNode(hn.id, stateFn(o.handle(deps.Handlers[hn.route])))
		if hn.route == conversation.RouteCombined {
			// Last edge, unconditional: anything not routed elsewhere is
			// answered by the combined handler.
			builder.AddEdge(nodeRoute, hn.id)
		} else {
			builder.AddEdge(nodeRoute, hn.id, graph.When(routeIs(hn.route)))
		}
		builder.AddEdge(hn.id, nodeSynthesize)
	}

	return builder.
		AddEdge(nodeSynthesize, nodeCommit).
		SetEntry(nodeStart).
		SetFinally(nodeCommit).
		Build()
}

func routeIs(route conversation.RouteTag) graph.EdgeCondition[*conversation.State] {
	return func(s *conversation.State) bool { return s.Route == route }
}

// start loads the thread history. A store failure switches the request to
// stateless mode instead of failing it. Running out of request time is not a
// store failure: the turn is still committed by the finally node.
func (o *Orchestrator) start(ctx context.Context, s *conversation.State) error {
	if s.Stateless {
		return nil
	}
	cp, err := o.store.Load(ctx, s.Key)
	if err != nil && ctx.Err() != nil {
		o.observer.Warn(ctx, "history load interrupted by request deadline",
			observability.String(observability.AttrThreadID, s.Key.String()),
			observability.Error(err),
		)
		return ctx.Err()
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load").Inc()
		o.observer.Warn(ctx, "history unavailable, answering without memory",
			observability.String(observability.AttrThreadID, s.Key.String()),
			observability.Error(err),
		)
		if span := observability.SpanFromContext(ctx); span != nil {
			span.AddEvent(observability.EventStatelessMode)
		}
		s.Stateless = true
		return nil
	}
	s.ApplyCheckpoint(cp)
	return nil
}

func (o *Orchestrator) classify(classifier Classifier) func(context.Context, *conversation.State) error {
	return func(ctx context.Context, s *conversation.State) error {
		s.Route = classifier.Classify(ctx, s.Query, s.History, s.LastRoute)
		return nil
	}
}

func (o *Orchestrator) handle(h handlers.Handler) func(context.Context, *conversation.State) error {
	return func(ctx context.Context, s *conversation.State) error {
		res := h.Handle(ctx, handlers.Request{Query: s.Query, RecentTurns: s.History})
		s.AddAnswers(res.Answers)
		s.Sources = append(s.Sources, res.Sources...)
		if res.Provider != "" {
			s.ActiveProvider = res.Provider
		}
		s.Degraded = s.Degraded || res.Degraded
		return nil
	}
}

// synthesize merges the domain answers; with a single answer the merger
// passes it through without a generation call.
func (o *Orchestrator) synthesize(merger Merger) func(context.Context, *conversation.State) error {
	return func(ctx context.Context, s *conversation.State) error {
		out := merger.Synthesize(ctx, s.Query, s.History, s.Answers())
		s.Answer = out.Answer
		s.Synthesized = out.Synthesized
		if out.Provider != "" {
			s.ActiveProvider = out.Provider
		}
		s.Degraded = s.Degraded || out.Degraded
		return nil
	}
}

// commit is the finally node. It fills in an answer when the flow was cut
// short, then appends the turn. It runs on a context detached from the
// request deadline.
func (o *Orchestrator) commit(ctx context.Context, s *conversation.State) error {
	if s.Answer == "" {
		s.Degraded = true
		if answers := s.Answers(); len(answers) > 0 {
			s.Answer = synth.Concatenate(answers)
		} else {
			s.Answer = TimedOutAnswer
		}
	}

	if s.Stateless {
		return nil
	}

	version, err := o.store.Append(ctx, s.Key, s.Turn(o.config.now()))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("append").Inc()
		o.observer.Error(ctx, "failed to commit turn",
			observability.String(observability.AttrThreadID, s.Key.String()),
			observability.Error(err),
		)
		s.MemorySaved = false
		return nil
	}

	s.Version = version
	s.MemorySaved = true
	o.observer.Debug(ctx, "turn committed",
		observability.String(observability.AttrThreadID, s.Key.String()),
		observability.String(observability.AttrRoute, s.Route.String()),
		observability.Int64(observability.AttrTurnCount, version),
	)
	return nil
}
