package memory

import (
	"context"
	"errors"

	"github.com/leofalp/taxassist/core/conversation"
)

var (
	// ErrUnavailable wraps every backend failure.
	ErrUnavailable = errors.New("memory: store unavailable")

	// ErrInvalidKey is returned for keys without a user or thread id.
	ErrInvalidKey = conversation.ErrInvalidKey
)

// Store persists conversation checkpoints.
type Store interface {
	// Load returns the checkpoint for key. A thread that was never written
	// yields an empty checkpoint with Version 0, not an error.
	Load(ctx context.Context, key conversation.ThreadKey) (*conversation.Checkpoint, error)

	// Append commits one turn and returns the new version (the number of
	// turns in the thread). Appends to the same key are applied in call
	// order; callers serialise them with a thread lock.
	Append(ctx context.Context, key conversation.ThreadKey, turn conversation.Turn) (int64, error)

	// ListThreads returns the thread ids of userID, most recently active
	// first. Unknown users yield an empty list.
	ListThreads(ctx context.Context, userID string) ([]string, error)

	// Delete removes a thread and reports whether anything was stored.
	Delete(ctx context.Context, key conversation.ThreadKey) (bool, error)

	// Close releases the resources held by the store.
	Close() error
}

// EmptyCheckpoint is what Load returns for a thread with no turns.
func EmptyCheckpoint(key conversation.ThreadKey) *conversation.Checkpoint {
	return &conversation.Checkpoint{Key: key, Turns: []conversation.Turn{}}
}
