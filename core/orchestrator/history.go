package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/internal/metrics"
)

// Message roles in a History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one side of a committed turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a thread's committed conversation. Each turn contributes a
// user message followed by an assistant message.
type History struct {
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	Messages  []Message `json:"messages"`
	Count     int       `json:"message_count"`
	TurnCount int       `json:"turn_count"`
}

// GetHistory returns the thread's turns in commit order. A thread with no
// turns yields ErrThreadNotFound.
func (o *Orchestrator) GetHistory(ctx context.Context, userID, threadID string) (*History, error) {
	key, err := threadKey(userID, threadID)
	if err != nil {
		return nil, err
	}

	cp, err := o.store.Load(ctx, key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("orchestrator: get history: %w", err)
	}
	if cp.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, key)
	}

	messages := make([]Message, 0, 2*len(cp.Turns))
	for _, turn := range cp.Turns {
		messages = append(messages,
			Message{Role: RoleUser, Content: turn.UserText, Timestamp: turn.CreatedAt},
			Message{Role: RoleAssistant, Content: turn.AssistantText, Timestamp: turn.CreatedAt},
		)
	}
	return &History{
		UserID:    key.UserID,
		ThreadID:  key.ThreadID,
		Messages:  messages,
		Count:     len(messages),
		TurnCount: len(cp.Turns),
	}, nil
}

// ListThreads returns the user's thread ids, most recently active first.
func (o *Orchestrator) ListThreads(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	threads, err := o.store.ListThreads(ctx, userID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("orchestrator: list threads: %w", err)
	}
	return threads, nil
}

// DeleteThread removes a thread. Deleting a thread with nothing stored
// reports ErrThreadNotFound, every time.
func (o *Orchestrator) DeleteThread(ctx context.Context, userID, threadID string) error {
	key, err := threadKey(userID, threadID)
	if err != nil {
		return err
	}

	// Take the thread lock so a delete never lands between a turn's load
	// and its commit.
	unlock, err := o.locker.Lock(ctx, key.String())
	if err != nil {
		return fmt.Errorf("orchestrator: delete thread: %w", err)
	}
	defer unlock()

	existed, err := o.store.Delete(ctx, key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("orchestrator: delete thread: %w", err)
	}
	if !existed {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, key)
	}
	return nil
}

func threadKey(userID, threadID string) (conversation.ThreadKey, error) {
	key := conversation.ThreadKey{UserID: strings.TrimSpace(userID), ThreadID: strings.TrimSpace(threadID)}
	if key.ThreadID == "" {
		key.ThreadID = conversation.DefaultThreadID
	}
	if key.UserID == "" {
		return key, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len([]rune(key.ThreadID)) > MaxThreadIDLength {
		return key, fmt.Errorf("%w: thread id exceeds %d characters", ErrInvalidInput, MaxThreadIDLength)
	}
	return key, nil
}
