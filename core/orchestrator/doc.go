// Package orchestrator runs one conversational turn end to end: it loads the
// thread's history, classifies the query, dispatches to the domain handlers,
// merges their answers and commits the turn.
//
// The flow is a [graph.Graph] over a per-request [conversation.State]:
//
//	start → route → tax | payroll | financial | combined → synthesize → commit
//
// commit is the graph's finally node, so it runs even when a stage fails or
// the caller's deadline expires. Every turn on a thread runs under that
// thread's lock, from load to commit, so concurrent requests on the same
// thread are committed one after another.
//
// Chat never fails for a valid query: handler, provider and synthesis
// failures all degrade to a labeled answer. Store failures are the one
// condition surfaced to callers, as ChatResult.MemorySaved == false.
package orchestrator
