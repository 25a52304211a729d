// Package memory defines the Store interface for durable per-thread
// conversation history. A thread is an append-only list of committed turns
// identified by a conversation.ThreadKey; stores never modify a turn once it
// has been appended.
//
// Implementations:
//   - [github.com/leofalp/taxassist/providers/memory/inmemory]: process memory
//   - [github.com/leofalp/taxassist/providers/memory/pgmemory]: PostgreSQL via pgx
//   - [github.com/leofalp/taxassist/providers/memory/sqlitememory]: SQLite, single node
//   - [github.com/leofalp/taxassist/providers/memory/cached]: read-through cache around any Store
//
// Backend failures are wrapped with [ErrUnavailable] so callers can tell a
// broken store from a missing thread.
package memory
