package pgmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
)

// defaultTableName is the table used when no custom name is provided.
const defaultTableName = "taxassist_turns"

// Querier abstracts the pgx methods the store needs. *pgxpool.Pool satisfies
// it, as do pgx.Tx and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements [memory.Store] on PostgreSQL. It holds no
// application-level lock; per-thread ordering comes from the caller's thread
// lock and the seq column.
type Store struct {
	db        Querier
	tableName string
	indexName string
	closeDB   bool
}

// Compile-time check: Store must implement memory.Store.
var _ memory.Store = (*Store)(nil)

// Option configures optional Store behavior.
type Option func(*Store)

// WithTableName overrides the default table name. The name is sanitized with
// pgx.Identifier because it is interpolated into statements.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
		s.indexName = pgx.Identifier{"idx_" + name + "_thread_seq"}.Sanitize()
	}
}

// WithOwnedPool makes Close also close db when it has a Close method.
func WithOwnedPool() Option {
	return func(s *Store) {
		s.closeDB = true
	}
}

// New returns a Store over db, typically a *pgxpool.Pool.
func New(db Querier, opts ...Option) *Store {
	s := &Store{
		db:        db,
		tableName: defaultTableName,
		indexName: "idx_" + defaultTableName + "_thread_seq",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the thread's turns ordered by seq.
func (s *Store) Load(ctx context.Context, key conversation.ThreadKey) (*conversation.Checkpoint, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT user_text, assistant_text, route, provider, created_at
		FROM %s WHERE user_id = $1 AND thread_id = $2 ORDER BY seq ASC`, s.tableName)

	rows, err := s.db.Query(ctx, query, key.UserID, key.ThreadID)
	if err != nil {
		return nil, unavailable("load", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, unavailable("load", err)
	}

	cp := memory.EmptyCheckpoint(key)
	cp.Turns = turns
	cp.Version = int64(len(turns))
	if n := len(turns); n > 0 {
		cp.UpdatedAt = turns[n-1].CreatedAt
	}
	return cp, nil
}

// Append inserts the turn and returns the thread's new turn count in the
// same round trip. The count subquery runs on the statement snapshot, which
// does not yet see the inserted row, hence the +1 from the CTE.
func (s *Store) Append(ctx context.Context, key conversation.ThreadKey, turn conversation.Turn) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`WITH ins AS (
			INSERT INTO %s (user_id, thread_id, user_text, assistant_text, route, provider, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING seq
		)
		SELECT (SELECT COUNT(*) FROM %s WHERE user_id = $1 AND thread_id = $2) + (SELECT COUNT(*) FROM ins)`,
		s.tableName, s.tableName)

	var version int64
	err := s.db.QueryRow(ctx, query,
		key.UserID,
		key.ThreadID,
		turn.UserText,
		turn.AssistantText,
		turn.Route.String(),
		turn.Provider,
		createdAt,
	).Scan(&version)
	if err != nil {
		return 0, unavailable("append", err)
	}
	return version, nil
}

// ListThreads returns userID's threads ordered by their latest turn.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT thread_id FROM %s WHERE user_id = $1
		GROUP BY thread_id ORDER BY MAX(seq) DESC`, s.tableName)

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, unavailable("list threads", err)
	}
	defer rows.Close()

	threads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list threads", err)
		}
		threads = append(threads, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list threads", err)
	}
	return threads, nil
}

// Delete removes every turn of the thread.
func (s *Store) Delete(ctx context.Context, key conversation.ThreadKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND thread_id = $2`, s.tableName)
	tag, err := s.db.Exec(ctx, query, key.UserID, key.ThreadID)
	if err != nil {
		return false, unavailable("delete", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Close closes the pool when the store owns it (see WithOwnedPool).
func (s *Store) Close() error {
	if !s.closeDB {
		return nil
	}
	if closer, ok := s.db.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}

// scanTurns reads rows of (user_text, assistant_text, route, provider,
// created_at). Unknown route labels decode as RouteCombined so a renamed
// label never makes a thread unreadable.
func scanTurns(rows pgx.Rows) ([]conversation.Turn, error) {
	turns := []conversation.Turn{}
	for rows.Next() {
		var (
			turn  conversation.Turn
			route string
		)
		if err := rows.Scan(&turn.UserText, &turn.AssistantText, &route, &turn.Provider, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		turn.Route = decodeRoute(route)
		turn.CreatedAt = turn.CreatedAt.UTC()
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return turns, nil
}

func decodeRoute(label string) conversation.RouteTag {
	if route, ok := conversation.ParseRouteTag(label); ok {
		return route
	}
	return conversation.RouteCombined
}

func unavailable(op string, err error) error {
	return fmt.Errorf("pgmemory: %s: %w: %w", op, memory.ErrUnavailable, err)
}
