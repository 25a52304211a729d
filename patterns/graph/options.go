package graph

import (
	"time"

	"github.com/leofalp/taxassist/providers/observability"
)

const (
	// DefaultMaxSteps bounds a single run.
	DefaultMaxSteps = 32

	// DefaultFinallyTimeout bounds the finally node, which runs detached
	// from the caller's deadline.
	DefaultFinallyTimeout = 10 * time.Second
)

type graphConfig struct {
	maxSteps       int
	nodeTimeout    time.Duration
	finallyTimeout time.Duration
	observer       observability.Provider
	nodeHook       NodeHook
}

func defaultConfig() graphConfig {
	return graphConfig{
		maxSteps:       DefaultMaxSteps,
		finallyTimeout: DefaultFinallyTimeout,
		observer:       observability.Nop(),
	}
}

// Option configures graph-level behavior.
type Option func(*graphConfig)

// WithMaxSteps sets the step bound. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(c *graphConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithDefaultNodeTimeout applies to nodes without their own timeout. Zero
// means nodes only inherit the run context's deadline.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(c *graphConfig) {
		c.nodeTimeout = d
	}
}

// WithFinallyTimeout sets the finally node's own deadline.
func WithFinallyTimeout(d time.Duration) Option {
	return func(c *graphConfig) {
		if d > 0 {
			c.finallyTimeout = d
		}
	}
}

// WithObserver sets the observability provider used for run and node spans.
func WithObserver(o observability.Provider) Option {
	return func(c *graphConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithNodeHook registers a callback invoked after every node execution.
func WithNodeHook(hook NodeHook) Option {
	return func(c *graphConfig) {
		c.nodeHook = hook
	}
}

// NodeOption configures a single node.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	timeout time.Duration
}

// WithNodeTimeout sets the node's execution timeout, overriding the graph
// default.
func WithNodeTimeout(d time.Duration) NodeOption {
	return func(c *nodeConfig) {
		c.timeout = d
	}
}

// EdgeOption configures a single edge.
type EdgeOption[S any] func(*edge[S])

// When makes an edge conditional.
func When[S any](cond EdgeCondition[S]) EdgeOption[S] {
	return func(e *edge[S]) {
		e.condition = cond
	}
}
