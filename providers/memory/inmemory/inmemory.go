package inmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/observability"
)

// thread is one conversation's committed turns.
type thread struct {
	turns     []conversation.Turn
	updatedAt time.Time
	// seq orders threads by last activity; wall clock alone can tie.
	seq uint64
}

// Store keeps every thread in memory. It uses an RWMutex so concurrent loads
// do not block each other.
type Store struct {
	mu      sync.RWMutex
	threads map[conversation.ThreadKey]*thread
	seq     uint64
	now     func() time.Time
}

// Ensure Store implements memory.Store at compile time.
var _ memory.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		threads: make(map[conversation.ThreadKey]*thread),
		now:     time.Now,
	}
}

// Load returns a copy of the thread's turns so callers cannot mutate stored
// state.
func (s *Store) Load(_ context.Context, key conversation.ThreadKey) (*conversation.Checkpoint, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[key]
	if !ok {
		return memory.EmptyCheckpoint(key), nil
	}
	turns := make([]conversation.Turn, len(th.turns))
	copy(turns, th.turns)
	return &conversation.Checkpoint{
		Key:       key,
		Turns:     turns,
		Version:   int64(len(turns)),
		UpdatedAt: th.updatedAt,
	}, nil
}

// Append stores turn at the end of the thread. When an observability span is
// present in ctx an event records the new version.
func (s *Store) Append(ctx context.Context, key conversation.ThreadKey, turn conversation.Turn) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	th, ok := s.threads[key]
	if !ok {
		th = &thread{}
		s.threads[key] = th
	}
	s.seq++
	th.turns = append(th.turns, turn)
	th.updatedAt = s.now()
	th.seq = s.seq
	version := int64(len(th.turns))
	s.mu.Unlock()

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent("memory.append",
			observability.String(observability.AttrThreadID, key.ThreadID),
			observability.Int64(observability.AttrTurnCount, version),
		)
	}
	return version, nil
}

// ListThreads returns userID's thread ids, most recently active first.
func (s *Store) ListThreads(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	type entry struct {
		id  string
		seq uint64
	}
	var entries []entry
	for key, th := range s.threads {
		if key.UserID == userID {
			entries = append(entries, entry{id: key.ThreadID, seq: th.seq})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}

// Delete removes the thread.
func (s *Store) Delete(_ context.Context, key conversation.ThreadKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[key]; !ok {
		return false, nil
	}
	delete(s.threads, key)
	return true, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
