package pgmemory

import (
	"context"
	"fmt"

	"github.com/leofalp/taxassist/providers/memory"
)

// createTableSQL creates the turns table. seq gives a total order across all
// threads, so both per-thread ordering and "most recently active" listing use
// it.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    seq            BIGSERIAL PRIMARY KEY,
    user_id        TEXT NOT NULL,
    thread_id      TEXT NOT NULL,
    user_text      TEXT NOT NULL,
    assistant_text TEXT NOT NULL,
    route          TEXT NOT NULL,
    provider       TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createThreadIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (user_id, thread_id, seq)`

// EnsureSchema creates the table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createTableSQL, s.tableName)); err != nil {
		return fmt.Errorf("pgmemory: create table: %w: %w", memory.ErrUnavailable, err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createThreadIndexSQL, s.indexName, s.tableName)); err != nil {
		return fmt.Errorf("pgmemory: create index: %w: %w", memory.ErrUnavailable, err)
	}
	return nil
}
