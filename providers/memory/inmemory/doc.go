// Package inmemory provides a concurrency-safe, process-local implementation
// of [memory.Store]. Threads live in a map of append-only turn slices and are
// lost on restart; use it for tests, development and single-replica
// deployments that accept losing history.
package inmemory
