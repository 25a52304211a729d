// Package memorytest holds the behavioural test suite every memory.Store
// implementation must pass.
package memorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) memory.Store

// Turn builds a turn with deterministic timestamps for tests.
func Turn(i int, route conversation.RouteTag) conversation.Turn {
	return conversation.Turn{
		UserText:      fmt.Sprintf("question %d", i),
		AssistantText: fmt.Sprintf("answer %d", i),
		Route:         route,
		Provider:      "groq",
		CreatedAt:     time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC),
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("LoadMissingIsEmpty", func(t *testing.T) { testLoadMissing(t, newStore) })
	t.Run("AppendAndLoadInOrder", func(t *testing.T) { testAppendAndLoad(t, newStore) })
	t.Run("ThreadsAreIsolated", func(t *testing.T) { testIsolation(t, newStore) })
	t.Run("ListThreads", func(t *testing.T) { testListThreads(t, newStore) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("InvalidKey", func(t *testing.T) { testInvalidKey(t, newStore) })
	t.Run("ConcurrentAppendsAllCommit", func(t *testing.T) { testConcurrentAppends(t, newStore) })
}

func open(t *testing.T, newStore Factory) memory.Store {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testLoadMissing(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	key := conversation.ThreadKey{UserID: "u1", ThreadID: "nope"}

	cp, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Empty(t, cp.Turns)
	assert.Equal(t, int64(0), cp.Version)
	assert.Equal(t, key, cp.Key)
}

func testAppendAndLoad(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()
	key := conversation.ThreadKey{UserID: "u1", ThreadID: "t1"}

	routes := []conversation.RouteTag{conversation.RouteTax, conversation.RoutePayroll, conversation.RouteCombined}
	for i, route := range routes {
		version, err := store.Append(ctx, key, Turn(i, route))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), version)
	}

	cp, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, cp.Turns, 3)
	assert.Equal(t, int64(3), cp.Version)
	for i, turn := range cp.Turns {
		assert.Equal(t, fmt.Sprintf("question %d", i), turn.UserText)
		assert.Equal(t, routes[i], turn.Route)
		assert.Equal(t, "groq", turn.Provider)
		assert.True(t, turn.CreatedAt.Equal(Turn(i, routes[i]).CreatedAt), "timestamp %v", turn.CreatedAt)
	}
	assert.Equal(t, conversation.RouteCombined, cp.LastRoute())

	// Mutating a loaded checkpoint must not affect the store.
	cp.Turns[0].UserText = "mutated"
	again, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "question 0", again.Turns[0].UserText)
}

func testIsolation(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	a := conversation.ThreadKey{UserID: "u1", ThreadID: "shared"}
	b := conversation.ThreadKey{UserID: "u2", ThreadID: "shared"}

	_, err := store.Append(ctx, a, Turn(0, conversation.RouteTax))
	require.NoError(t, err)

	cp, err := store.Load(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, cp.Turns, "threads with the same id under different users must not share turns")
}

func testListThreads(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	for i, thread := range []string{"older", "newer"} {
		_, err := store.Append(ctx, conversation.ThreadKey{UserID: "u1", ThreadID: thread}, Turn(i, conversation.RouteTax))
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, conversation.ThreadKey{UserID: "u2", ThreadID: "other"}, Turn(0, conversation.RouteTax))
	require.NoError(t, err)

	threads, err := store.ListThreads(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"newer", "older"}, threads)

	threads, err = store.ListThreads(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func testDelete(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()
	key := conversation.ThreadKey{UserID: "u1", ThreadID: "t1"}

	_, err := store.Append(ctx, key, Turn(0, conversation.RouteTax))
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)

	cp, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, cp.Turns)

	deleted, err = store.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete must report nothing was stored")

	threads, err := store.ListThreads(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func testInvalidKey(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()
	bad := conversation.ThreadKey{UserID: "", ThreadID: "t1"}

	_, err := store.Load(ctx, bad)
	assert.True(t, errors.Is(err, memory.ErrInvalidKey), "Load: %v", err)

	_, err = store.Append(ctx, bad, Turn(0, conversation.RouteTax))
	assert.True(t, errors.Is(err, memory.ErrInvalidKey), "Append: %v", err)

	_, err = store.Delete(ctx, bad)
	assert.True(t, errors.Is(err, memory.ErrInvalidKey), "Delete: %v", err)
}

func testConcurrentAppends(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()
	key := conversation.ThreadKey{UserID: "u1", ThreadID: "busy"}

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(ctx, key, Turn(i, conversation.RouteTax)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cp, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, cp.Turns, n)
	assert.Equal(t, int64(n), cp.Version)
}
