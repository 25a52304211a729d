package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leofalp/taxassist/providers/observability"
)

var (
	// ErrNoTransition is returned when a node has outgoing edges but none of
	// their conditions holds for the current state.
	ErrNoTransition = errors.New("graph: no transition matches state")

	// ErrMaxSteps is returned when a run exceeds the step bound, which
	// usually means a conditional cycle never exits.
	ErrMaxSteps = errors.New("graph: step limit exceeded")
)

// NodeExecutor is the processing logic of a single node. It reads and
// mutates state; a returned error stops normal flow and jumps to the finally
// node.
type NodeExecutor[S any] interface {
	Execute(ctx context.Context, state S) error
}

// NodeExecutorFunc adapts an ordinary function to NodeExecutor.
type NodeExecutorFunc[S any] func(ctx context.Context, state S) error

// Execute calls f.
func (f NodeExecutorFunc[S]) Execute(ctx context.Context, state S) error {
	return f(ctx, state)
}

// EdgeCondition decides whether an edge is taken. A nil condition always
// holds.
type EdgeCondition[S any] func(state S) bool

// NodeHook observes every node execution; stage metrics hang off it.
type NodeHook func(nodeID string, elapsed time.Duration, err error)

type node[S any] struct {
	id       string
	executor NodeExecutor[S]
	timeout  time.Duration
}

type edge[S any] struct {
	from      string
	to        string
	condition EdgeCondition[S]
}

// RunResult describes one execution.
type RunResult struct {
	// Path lists the executed nodes in order, finally node included.
	Path []string
	// Durations holds the wall-clock time of each executed node.
	Durations map[string]time.Duration
}

// Graph is an immutable, validated state machine. It is safe for concurrent
// Run calls as long as each call gets its own state.
type Graph[S any] struct {
	nodes    map[string]*node[S]
	outgoing map[string][]*edge[S]
	entry    string
	finally  string
	config   graphConfig
}

// Run executes the graph from the entry node. Execution stops at a node
// without outgoing edges, on the first node error, or when ctx ends; in every
// case the finally node (if any) runs afterwards. The returned error joins
// the flow error with the finally node's error.
func (g *Graph[S]) Run(ctx context.Context, state S) (*RunResult, error) {
	ctx, span := g.config.observer.StartSpan(ctx, observability.SpanGraphRun,
		observability.String(observability.AttrGraphNode, g.entry),
	)
	defer span.End()

	result := &RunResult{Durations: make(map[string]time.Duration)}

	runErr := g.flow(ctx, state, result)

	if g.finally != "" {
		// The finally node must run even when the caller gave up.
		finallyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.finallyTimeout)
		if err := g.runNode(finallyCtx, g.nodes[g.finally], state, result); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("graph: finally node %q: %w", g.finally, err))
		}
		cancel()
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(observability.StatusError, runErr.Error())
		return result, runErr
	}
	span.SetStatus(observability.StatusOK, "")
	return result, nil
}

func (g *Graph[S]) flow(ctx context.Context, state S, result *RunResult) error {
	current := g.entry
	for step := 0; current != g.finally; step++ {
		if step >= g.config.maxSteps {
			return fmt.Errorf("%w: %d steps", ErrMaxSteps, g.config.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("graph: before node %q: %w", current, err)
		}
		if err := g.runNode(ctx, g.nodes[current], state, result); err != nil {
			return fmt.Errorf("graph: node %q: %w", current, err)
		}

		edges := g.outgoing[current]
		if len(edges) == 0 {
			return nil
		}
		next := ""
		for _, e := range edges {
			if e.condition == nil || e.condition(state) {
				next = e.to
				break
			}
		}
		if next == "" {
			return fmt.Errorf("%w: after node %q", ErrNoTransition, current)
		}
		current = next
	}
	return nil
}

func (g *Graph[S]) runNode(ctx context.Context, n *node[S], state S, result *RunResult) error {
	timeout := n.timeout
	if timeout <= 0 {
		timeout = g.config.nodeTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := g.config.observer.StartSpan(ctx, observability.SpanGraphNode,
		observability.String(observability.AttrGraphNode, n.id),
	)
	defer span.End()

	start := time.Now()
	err := n.executor.Execute(ctx, state)
	elapsed := time.Since(start)

	result.Path = append(result.Path, n.id)
	result.Durations[n.id] += elapsed

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
	}
	attrs := []observability.Attribute{
		observability.String(observability.AttrGraphNode, n.id),
		observability.String(observability.AttrStatus, status),
	}
	g.config.observer.Counter(observability.MetricGraphNodeRuns).Add(ctx, 1, attrs...)
	g.config.observer.Histogram(observability.MetricGraphNodeLatency).Record(ctx, float64(elapsed.Milliseconds()), attrs...)

	if g.config.nodeHook != nil {
		g.config.nodeHook(n.id, elapsed, err)
	}
	return err
}
