package conversation

import (
	"errors"
	"strings"
	"time"
)

// DefaultThreadID is used when the caller does not name a thread.
const DefaultThreadID = "default"

// ErrInvalidKey is returned for keys missing a user or thread id.
var ErrInvalidKey = errors.New("conversation: user id and thread id are required")

// ThreadKey identifies one conversation.
type ThreadKey struct {
	UserID   string
	ThreadID string
}

// Validate checks that both parts are present.
func (k ThreadKey) Validate() error {
	if strings.TrimSpace(k.UserID) == "" || strings.TrimSpace(k.ThreadID) == "" {
		return ErrInvalidKey
	}
	return nil
}

// String renders the key as "user/thread"; used for lock and cache keys.
func (k ThreadKey) String() string {
	return k.UserID + "/" + k.ThreadID
}

// Turn is one committed request/response round-trip. Turns are never
// modified after they are appended.
type Turn struct {
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Route         RouteTag  `json:"route"`
	Provider      string    `json:"provider,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Source is a piece of evidence surfaced alongside an answer.
type Source struct {
	Text   string  `json:"text"`
	Origin string  `json:"origin"`
	Kind   string  `json:"kind,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// Checkpoint is the persisted snapshot of a thread. Version equals the number
// of committed turns; zero means the thread has never been written.
type Checkpoint struct {
	Key       ThreadKey
	Turns     []Turn
	Version   int64
	UpdatedAt time.Time
}

// Empty reports whether no turn has been committed.
func (c *Checkpoint) Empty() bool {
	return c == nil || len(c.Turns) == 0
}

// LastRoute is the route of the most recent turn, RouteUnset for new threads.
func (c *Checkpoint) LastRoute() RouteTag {
	if c.Empty() {
		return RouteUnset
	}
	return c.Turns[len(c.Turns)-1].Route
}

// RecentTurns returns up to n of the latest turns, oldest first. The slice is
// a copy.
func (c *Checkpoint) RecentTurns(n int) []Turn {
	if c.Empty() || n <= 0 {
		return nil
	}
	start := max(len(c.Turns)-n, 0)
	out := make([]Turn, len(c.Turns)-start)
	copy(out, c.Turns[start:])
	return out
}

// Clone returns a deep copy so callers never alias stored turn slices.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Turns = make([]Turn, len(c.Turns))
	copy(clone.Turns, c.Turns)
	return &clone
}
