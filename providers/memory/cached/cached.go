// Package cached decorates a memory.Store with an in-process read cache.
package cached

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
)

// DefaultTTL bounds how long a loaded checkpoint is served from cache.
const DefaultTTL = 5 * time.Minute

// Store caches Load results of an inner store. Append and Delete go straight
// to the inner store and evict the thread's entry. Other replicas writing to
// the same backing store are only seen after the TTL expires, so keep it
// short when more than one replica serves traffic.
type Store struct {
	inner memory.Store
	cache *cache.Cache

	// mu orders cache fills against evictions. gen counts writes; a Load
	// that raced a write does not fill the cache with what it read.
	mu  sync.Mutex
	gen uint64
}

var _ memory.Store = (*Store)(nil)

// New wraps inner. A non-positive ttl selects DefaultTTL.
func New(inner memory.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
	}
}

// Load returns a copy of the cached checkpoint or delegates to the inner store.
func (s *Store) Load(ctx context.Context, key conversation.ThreadKey) (*conversation.Checkpoint, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if val, found := s.cache.Get(key.String()); found {
		if cp, ok := val.(*conversation.Checkpoint); ok {
			return cp.Clone(), nil
		}
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	cp, err := s.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cache.Set(key.String(), cp.Clone(), cache.DefaultExpiration)
	}
	s.mu.Unlock()
	return cp, nil
}

// evict drops the thread's entry and invalidates Loads already in flight.
func (s *Store) evict(key conversation.ThreadKey) {
	s.mu.Lock()
	s.gen++
	s.cache.Delete(key.String())
	s.mu.Unlock()
}

// Append writes the turn to the inner store and evicts the thread's entry.
func (s *Store) Append(ctx context.Context, key conversation.ThreadKey, turn conversation.Turn) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	// Evict on both sides of the write: before, so a half-applied write is
	// never served as current; after, so a Load that read the old rows while
	// the write ran cannot cache them.
	s.evict(key)
	defer s.evict(key)
	return s.inner.Append(ctx, key, turn)
}

// ListThreads is not cached.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]string, error) {
	return s.inner.ListThreads(ctx, userID)
}

// Delete removes the thread from the inner store and evicts its entry.
func (s *Store) Delete(ctx context.Context, key conversation.ThreadKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	s.evict(key)
	defer s.evict(key)
	return s.inner.Delete(ctx, key)
}

// Close flushes the cache and closes the inner store.
func (s *Store) Close() error {
	s.cache.Flush()
	return s.inner.Close()
}
