// Package pgmemory provides a PostgreSQL-backed implementation of
// [memory.Store] for durable, multi-replica conversation history. It uses
// pgx/v5; every statement acquires and releases its own pool connection.
//
// Turns are stored one row per turn and ordered by a BIGSERIAL seq column,
// which avoids timestamp collisions between rapid appends. Use [EnsureSchema]
// to create the table during development; production deployments should
// manage migrations with dedicated tooling.
package pgmemory
