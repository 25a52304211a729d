// Package sqlitememory stores conversation history in a single SQLite file
// using the pure-Go modernc.org/sqlite driver. It suits single-replica
// deployments that want history to survive restarts without running
// PostgreSQL.
package sqlitememory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
)

const schema = `
	CREATE TABLE IF NOT EXISTS turns (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        TEXT NOT NULL,
		thread_id      TEXT NOT NULL,
		user_text      TEXT NOT NULL,
		assistant_text TEXT NOT NULL,
		route          TEXT NOT NULL,
		provider       TEXT NOT NULL DEFAULT '',
		created_at     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_thread_seq
		ON turns(user_id, thread_id, seq);
`

// Store implements memory.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ memory.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger; the component attribute is added by Open.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates (or reopens) the database at path. Parent directories are
// created if needed and the schema is applied on every open.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sqlitememory")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitememory: creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitememory: opening database: %w", err)
	}
	// One writer at a time; SQLite would otherwise answer SQLITE_BUSY under
	// concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitememory: enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitememory: creating schema: %w", err)
	}

	s.db = db
	s.logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *Store) Load(ctx context.Context, key conversation.ThreadKey) (*conversation.Checkpoint, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_text, assistant_text, route, provider, created_at
		FROM turns WHERE user_id = ? AND thread_id = ? ORDER BY seq ASC`,
		key.UserID, key.ThreadID)
	if err != nil {
		return nil, s.unavailable("load", err)
	}
	defer rows.Close()

	cp := memory.EmptyCheckpoint(key)
	for rows.Next() {
		var (
			turn      conversation.Turn
			route     string
			createdAt int64
		)
		if err := rows.Scan(&turn.UserText, &turn.AssistantText, &route, &turn.Provider, &createdAt); err != nil {
			return nil, s.unavailable("load", err)
		}
		turn.Route = decodeRoute(route)
		turn.CreatedAt = time.Unix(0, createdAt).UTC()
		cp.Turns = append(cp.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("load", err)
	}

	cp.Version = int64(len(cp.Turns))
	if n := len(cp.Turns); n > 0 {
		cp.UpdatedAt = cp.Turns[n-1].CreatedAt
	}
	return cp, nil
}

// Append inserts the turn and counts the thread inside one transaction.
func (s *Store) Append(ctx context.Context, key conversation.ThreadKey, turn conversation.Turn) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.unavailable("append", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (user_id, thread_id, user_text, assistant_text, route, provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.UserID, key.ThreadID, turn.UserText, turn.AssistantText,
		turn.Route.String(), turn.Provider, createdAt.UnixNano()); err != nil {
		return 0, s.unavailable("append", err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE user_id = ? AND thread_id = ?`,
		key.UserID, key.ThreadID).Scan(&version); err != nil {
		return 0, s.unavailable("append", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, s.unavailable("append", err)
	}
	return version, nil
}

func (s *Store) ListThreads(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id FROM turns WHERE user_id = ?
		GROUP BY thread_id ORDER BY MAX(seq) DESC`, userID)
	if err != nil {
		return nil, s.unavailable("list threads", err)
	}
	defer rows.Close()

	threads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.unavailable("list threads", err)
		}
		threads = append(threads, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("list threads", err)
	}
	return threads, nil
}

func (s *Store) Delete(ctx context.Context, key conversation.ThreadKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM turns WHERE user_id = ? AND thread_id = ?`, key.UserID, key.ThreadID)
	if err != nil {
		return false, s.unavailable("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.unavailable("delete", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) unavailable(op string, err error) error {
	s.logger.Warn("sqlite operation failed", "op", op, "error", err)
	return fmt.Errorf("sqlitememory: %s: %w: %w", op, memory.ErrUnavailable, err)
}

func decodeRoute(label string) conversation.RouteTag {
	if route, ok := conversation.ParseRouteTag(label); ok {
		return route
	}
	return conversation.RouteCombined
}
