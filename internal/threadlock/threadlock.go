// Package threadlock serialises work on a single conversation thread. Turns of
// one thread are committed strictly one after another while distinct threads
// proceed in parallel.
package threadlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leofalp/taxassist/internal/metrics"
)

// ErrUnavailable is returned when a distributed lock backend cannot be
// reached.
var ErrUnavailable = errors.New("threadlock: backend unavailable")

// Locker acquires a per-key exclusive lock. Lock blocks until the lock is held
// or ctx is done; the returned func releases it and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// entry is one key's lock. refs counts holders plus waiters so the map entry
// can be dropped once nobody needs it.
type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty keyed mutex.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
	metrics.LockWait.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports how many keys are tracked.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
