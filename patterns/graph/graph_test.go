package graph

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type testState struct {
	visited []string
	branch  string
	loops   int
}

// record returns an executor that appends id to the state's visit log.
func record(id string) NodeExecutorFunc[*testState] {
	return func(_ context.Context, s *testState) error {
		s.visited = append(s.visited, id)
		return nil
	}
}

func fail(err error) NodeExecutorFunc[*testState] {
	return func(context.Context, *testState) error { return err }
}

func branchIs(name string) EdgeCondition[*testState] {
	return func(s *testState) bool { return s.branch == name }
}

func buildPipeline(t *testing.T, opts ...Option) *Graph[*testState] {
	t.Helper()
	g, err := NewGraphBuilder[*testState](opts...).
		AddNode("start", record("start")).
		AddNode("left", record("left")).
		AddNode("right", record("right")).
		AddNode("finish", record("finish")).
		AddNode("commit", record("commit")).
		AddEdge("start", "left", When(branchIs("left"))).
		AddEdge("start", "right").
		AddEdge("left", "finish").
		AddEdge("right", "finish").
		AddEdge("finish", "commit").
		SetEntry("start").
		SetFinally("commit").
		Build()
	if err != nil {
		t.Fatalf("Build returned unexpected error: %v", err)
	}
	return g
}

func TestRun_FollowsFirstMatchingEdge(t *testing.T) {
	g := buildPipeline(t)

	state := &testState{branch: "left"}
	result, err := g.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	want := []string{"start", "left", "finish", "commit"}
	if !slices.Equal(result.Path, want) {
		t.Fatalf("expected path %v, got %v", want, result.Path)
	}
	if !slices.Equal(state.visited, want) {
		t.Fatalf("expected visits %v, got %v", want, state.visited)
	}

	state = &testState{branch: "other"}
	result, err = g.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if result.Path[1] != "right" {
		t.Fatalf("expected unconditional fallback edge to right, got %v", result.Path)
	}
}

func TestRun_FinallyRunsOnceWhenReachedNormally(t *testing.T) {
	g := buildPipeline(t)
	state := &testState{}

	if _, err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	count := 0
	for _, id := range state.visited {
		if id == "commit" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected finally node to run once, ran %d times", count)
	}
}

func TestRun_NodeErrorJumpsToFinally(t *testing.T) {
	boom := errors.New("boom")
	g, err := NewGraphBuilder[*testState]().
		AddNode("start", record("start")).
		AddNode("work", fail(boom)).
		AddNode("skipped", record("skipped")).
		AddNode("commit", record("commit")).
		AddEdge("start", "work").
		AddEdge("work", "skipped").
		AddEdge("skipped", "commit").
		SetEntry("start").
		SetFinally("commit").
		Build()
	if err != nil {
		t.Fatalf("Build returned unexpected error: %v", err)
	}

	state := &testState{}
	result, err := g.Run(context.Background(), state)
	if !errors.Is(err, boom) {
		t.Fatalf("expected node error to be returned, got %v", err)
	}
	if !slices.Equal(state.visited, []string{"start", "commit"}) {
		t.Fatalf("unexpected visits: %v", state.visited)
	}
	if !slices.Equal(result.Path, []string{"start", "work", "commit"}) {
		t.Fatalf("unexpected path: %v", result.Path)
	}
}

func TestRun_FinallyRunsAfterCallerDeadline(t *testing.T) {
	var finallyCtxErr atomic.Value
	g, err := NewGraphBuilder[*testState]().
		AddNode("slow", NodeExecutorFunc[*testState](func(ctx context.Context, _ *testState) error {
			<-ctx.Done()
			return ctx.Err()
		})).
		AddNode("commit", NodeExecutorFunc[*testState](func(ctx context.Context, s *testState) error {
			finallyCtxErr.Store(ctx.Err() == nil)
			s.visited = append(s.visited, "commit")
			return nil
		})).
		AddEdge("slow", "commit").
		SetEntry("slow").
		SetFinally("commit").
		Build()
	if err != nil {
		t.Fatalf("Build returned unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	state := &testState{}
	_, err = g.Run(ctx, state)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !slices.Equal(state.visited, []string{"commit"}) {
		t.Fatalf("expected finally node to run, visits %v", state.visited)
	}
	if live, _ := finallyCtxErr.Load().(bool); !live {
		t.Fatal("expected finally node to run on a live context")
	}
}

func TestRun_CancelledBeforeStartStillRunsFinally(t *testing.T) {
	g := buildPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := &testState{}
	_, err := g.Run(ctx, state)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !slices.Equal(state.visited, []string{"commit"}) {
		t.Fatalf("unexpected visits: %v", state.visited)
	}
}

func TestRun_NoTransition(t *testing.T) {
	g, err := NewGraphBuilder[*testState]().
		AddNode("start", record("start")).
		AddNode("a", record("a")).
		AddEdge("start", "a", When(branchIs("a"))).
		SetEntry("start").
		Build()
	if err != nil {
		t.Fatalf("Build returned unexpected error: %v", err)
	}

	_, err = g.Run(context.Background(), &testState{branch: "b"})
	if !errors.Is(err, ErrNoTransition) {
		t.Fatalf("expected ErrNoTransition, got %v", err)
	}
}

func TestRun_StepBoundStopsCycles(t *testing.T) {
	g, err := NewGraphBuilder[*testState](WithMaxSteps(5)).
		AddNode("a", NodeExecutorFunc[*testState](func(_ context.Context, s *testState) error {
			s.loops++
			return nil
		})).
		AddNode("b", record("b")).
		AddEdge("a", "b").
		AddEdge("b", "a").
		SetEntry("a").
		Build()
	if err != nil {
		t.Fatalf("Build returned unexpected error: %v", err)
	}

	state := &testState{}
	_, err = g.Run(context.Background(), state)
	if !errors.Is(err, ErrMaxSteps) {
		t.Fatalf("expected ErrMaxSteps, got %v", err)
	}
	if state.loops != 3 {
		t.Fatalf("expected 3 visits to a within 5 steps, got %d", state.loops)
	}
}

func TestRun_NodeTimeout(t *testing.T) {
	g, err := NewGraphBuilder[*testState]().
		AddNode("slow", NodeExecutorFunc[*testState](func(ctx context.Context, _ *testState) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		}), WithNodeTimeout(10*time.Millisecond)).
		SetEntry("slow").
		Build()
	if err != nil {
		t.Fatalf("Build returned unexpected error: %v", err)
	}

	start := time.Now()
	_, err = g.Run(context.Background(), &testState{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected node deadline, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("node timeout was not applied")
	}
}

func TestRun_NodeHookSeesEveryNode(t *testing.T) {
	var seen []string
	g := buildPipeline(t, WithNodeHook(func(nodeID string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("unexpected error for %s: %v", nodeID, err)
		}
		seen = append(seen, nodeID)
	}))

	result, err := g.Run(context.Background(), &testState{})
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if !slices.Equal(seen, result.Path) {
		t.Fatalf("hook saw %v, path was %v", seen, result.Path)
	}
	for _, id := range result.Path {
		if _, ok := result.Durations[id]; !ok {
			t.Fatalf("missing duration for %s", id)
		}
	}
}

func TestBuild_Validation(t *testing.T) {
	noop := record("x")
	tests := []struct {
		name    string
		build   func() (*Graph[*testState], error)
		wantErr string
	}{
		{
			name: "empty graph",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().Build()
			},
			wantErr: "at least one node",
		},
		{
			name: "empty node id",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("", noop).SetEntry("a").Build()
			},
			wantErr: "must not be empty",
		},
		{
			name: "duplicate node",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).AddNode("a", noop).SetEntry("a").Build()
			},
			wantErr: "duplicate node ID",
		},
		{
			name: "missing entry",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).Build()
			},
			wantErr: "entry node is not set",
		},
		{
			name: "unknown entry",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).SetEntry("b").Build()
			},
			wantErr: "does not exist",
		},
		{
			name: "unknown edge target",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).AddEdge("a", "b").SetEntry("a").Build()
			},
			wantErr: "non-existent target",
		},
		{
			name: "duplicate edge",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).AddNode("b", noop).
					AddEdge("a", "b").AddEdge("a", "b").SetEntry("a").Build()
			},
			wantErr: "duplicate edge",
		},
		{
			name: "unreachable node",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).AddNode("island", noop).SetEntry("a").Build()
			},
			wantErr: "unreachable",
		},
		{
			name: "finally with outgoing edge",
			build: func() (*Graph[*testState], error) {
				return NewGraphBuilder[*testState]().AddNode("a", noop).AddNode("f", noop).
					AddEdge("f", "a").SetEntry("a").SetFinally("f").Build()
			},
			wantErr: "must not have outgoing edges",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuild_FinallyNeedsNoIncomingEdge(t *testing.T) {
	_, err := NewGraphBuilder[*testState]().
		AddNode("a", record("a")).
		AddNode("cleanup", record("cleanup")).
		SetEntry("a").
		SetFinally("cleanup").
		Build()
	if err != nil {
		t.Fatalf("expected finally node to count as reachable, got %v", err)
	}
}
