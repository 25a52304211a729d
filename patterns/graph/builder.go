package graph

import (
	"errors"
	"fmt"
)

// GraphBuilder constructs a validated Graph[S] using a fluent API.
// Errors from AddNode/AddEdge are accumulated and reported by Build.
//
// Build enforces the following constraints:
//   - Node IDs are non-empty and unique
//   - Edge endpoints reference existing nodes, with no duplicate edges
//   - An entry node is set and exists
//   - The finally node, if set, exists and has no outgoing edges
//   - Every node is reachable from the entry (the finally node always is)
type GraphBuilder[S any] struct {
	config      graphConfig
	nodes       map[string]*node[S]
	nodeOrder   []string
	edges       []*edge[S]
	entry       string
	finally     string
	buildErrors []error
}

// NewGraphBuilder creates a builder. Graph-level options are applied here.
func NewGraphBuilder[S any](opts ...Option) *GraphBuilder[S] {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &GraphBuilder[S]{
		config: config,
		nodes:  make(map[string]*node[S]),
	}
}

// AddNode registers a node under a unique id.
func (builder *GraphBuilder[S]) AddNode(nodeID string, executor NodeExecutor[S], opts ...NodeOption) *GraphBuilder[S] {
	if nodeID == "" {
		builder.buildErrors = append(builder.buildErrors, errors.New("node ID must not be empty"))
		return builder
	}
	if executor == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("executor must not be nil for node %q", nodeID))
		return builder
	}
	if _, exists := builder.nodes[nodeID]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("duplicate node ID %q", nodeID))
		return builder
	}

	var cfg nodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	builder.nodes[nodeID] = &node[S]{id: nodeID, executor: executor, timeout: cfg.timeout}
	builder.nodeOrder = append(builder.nodeOrder, nodeID)
	return builder
}

// AddEdge adds a transition. Outgoing edges of a node are tried in the order
// they were added; the first whose condition holds is taken.
func (builder *GraphBuilder[S]) AddEdge(from, to string, opts ...EdgeOption[S]) *GraphBuilder[S] {
	if from == "" || to == "" {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("edge endpoints must not be empty (from=%q, to=%q)", from, to))
		return builder
	}

	graphEdge := &edge[S]{from: from, to: to}
	for _, opt := range opts {
		opt(graphEdge)
	}
	builder.edges = append(builder.edges, graphEdge)
	return builder
}

// SetEntry sets the node every run starts from.
func (builder *GraphBuilder[S]) SetEntry(nodeID string) *GraphBuilder[S] {
	builder.entry = nodeID
	return builder
}

// SetFinally sets the node that always runs last.
func (builder *GraphBuilder[S]) SetFinally(nodeID string) *GraphBuilder[S] {
	builder.finally = nodeID
	return builder
}

// Build validates the structure and returns an executable graph.
func (builder *GraphBuilder[S]) Build() (*Graph[S], error) {
	if len(builder.buildErrors) > 0 {
		return nil, fmt.Errorf("graph build errors: %w", errors.Join(builder.buildErrors...))
	}
	if len(builder.nodes) == 0 {
		return nil, errors.New("graph must contain at least one node")
	}
	if builder.entry == "" {
		return nil, errors.New("graph entry node is not set")
	}
	if _, exists := builder.nodes[builder.entry]; !exists {
		return nil, fmt.Errorf("entry node %q does not exist in the graph", builder.entry)
	}
	if builder.finally != "" {
		if _, exists := builder.nodes[builder.finally]; !exists {
			return nil, fmt.Errorf("finally node %q does not exist in the graph", builder.finally)
		}
	}

	outgoing, err := builder.validateEdges()
	if err != nil {
		return nil, err
	}
	if builder.finally != "" && len(outgoing[builder.finally]) > 0 {
		return nil, fmt.Errorf("finally node %q must not have outgoing edges", builder.finally)
	}
	if err := builder.validateReachability(outgoing); err != nil {
		return nil, err
	}

	return &Graph[S]{
		nodes:    builder.nodes,
		outgoing: outgoing,
		entry:    builder.entry,
		finally:  builder.finally,
		config:   builder.config,
	}, nil
}

// validateEdges checks endpoints and duplicates and groups edges by source.
func (builder *GraphBuilder[S]) validateEdges() (map[string][]*edge[S], error) {
	outgoing := make(map[string][]*edge[S], len(builder.nodes))
	seen := make(map[string]bool)

	for _, graphEdge := range builder.edges {
		if _, exists := builder.nodes[graphEdge.from]; !exists {
			return nil, fmt.Errorf("edge references non-existent source node %q", graphEdge.from)
		}
		if _, exists := builder.nodes[graphEdge.to]; !exists {
			return nil, fmt.Errorf("edge references non-existent target node %q", graphEdge.to)
		}

		edgeKey := graphEdge.from + "->" + graphEdge.to
		if seen[edgeKey] {
			return nil, fmt.Errorf("duplicate edge from %q to %q", graphEdge.from, graphEdge.to)
		}
		seen[edgeKey] = true
		outgoing[graphEdge.from] = append(outgoing[graphEdge.from], graphEdge)
	}
	return outgoing, nil
}

// validateReachability walks the edges from the entry node.
func (builder *GraphBuilder[S]) validateReachability(outgoing map[string][]*edge[S]) error {
	reached := map[string]bool{builder.entry: true}
	if builder.finally != "" {
		reached[builder.finally] = true
	}
	queue := []string{builder.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, graphEdge := range outgoing[current] {
			if !reached[graphEdge.to] {
				reached[graphEdge.to] = true
				queue = append(queue, graphEdge.to)
			}
		}
	}

	for _, nodeID := range builder.nodeOrder {
		if !reached[nodeID] {
			return fmt.Errorf("node %q is unreachable from entry %q", nodeID, builder.entry)
		}
	}
	return nil
}
