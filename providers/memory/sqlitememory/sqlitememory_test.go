package sqlitememory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/memory/memorytest"
)

func TestStoreSuite(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store {
		store, err := Open(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		return store
	})
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.FileExists(t, path)
}

func TestHistorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	key := conversation.ThreadKey{UserID: "u1", ThreadID: "t1"}

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Append(ctx, key, memorytest.Turn(1, conversation.RoutePayroll))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	cp, err := reopened.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, cp.Turns, 1)
	assert.Equal(t, conversation.RoutePayroll, cp.Turns[0].Route)
	assert.True(t, cp.Turns[0].CreatedAt.Equal(memorytest.Turn(1, conversation.RoutePayroll).CreatedAt))
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Load(context.Background(), conversation.ThreadKey{UserID: "u1", ThreadID: "t1"})
	assert.ErrorIs(t, err, memory.ErrUnavailable)
}
