package inmemory

import (
	"context"
	"testing"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/memory/memorytest"
)

func TestStore(t *testing.T) {
	memorytest.Run(t, func(*testing.T) memory.Store { return New() })
}

func TestAppend_UpdatesTimestamp(t *testing.T) {
	s := New()
	key := conversation.ThreadKey{UserID: "u", ThreadID: "t"}

	if _, err := s.Append(context.Background(), key, memorytest.Turn(0, conversation.RouteTax)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cp, err := s.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}
}
