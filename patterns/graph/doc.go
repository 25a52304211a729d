// Package graph implements a small typed state machine for request
// pipelines. Each node mutates a shared state value of type S; edges decide
// which node runs next from that state.
//
// Unlike a DAG scheduler, exactly one node runs at a time and the path is
// chosen at runtime by edge conditions, evaluated in insertion order. An
// optional finally node always runs last, on a context detached from the
// caller's cancellation, which makes it the place for commit-style work
// that must happen even when the request deadline has passed.
//
// Example:
//
//	g, err := graph.NewGraphBuilder[*State]().
//	    AddNode("classify", classify).
//	    AddNode("answer", answer).
//	    AddNode("save", save).
//	    AddEdge("classify", "answer", graph.When(func(s *State) bool { return s.OK })).
//	    AddEdge("answer", "save").
//	    SetEntry("classify").
//	    SetFinally("save").
//	    Build()
//
//	result, err := g.Run(ctx, state)
//	fmt.Println(result.Path)
package graph
