package conversation

import (
	"maps"
	"time"
)

// State is the per-request working set threaded through the state machine.
// It is built once per Chat call; only the commit stage turns it into a Turn.
type State struct {
	Key   ThreadKey
	Query string

	// Loaded from the checkpoint at Start.
	History   []Turn
	LastRoute RouteTag
	Version   int64

	// Decided by the classifier.
	Route RouteTag

	// Scratch: cleared by ResetScratch at the start of every turn.
	DomainAnswers  map[RouteTag]string
	Sources        []Source
	ActiveProvider string

	Answer      string
	Synthesized bool
	Degraded    bool

	// Stateless is set when the checkpoint could not be loaded; MemorySaved
	// reports whether the commit reached the store.
	Stateless   bool
	MemorySaved bool
}

// NewState builds the state for one request.
func NewState(key ThreadKey, query string) *State {
	s := &State{Key: key, Query: query}
	s.ResetScratch()
	return s
}

// ResetScratch clears every per-turn field.
func (s *State) ResetScratch() {
	s.Route = RouteUnset
	s.DomainAnswers = make(map[RouteTag]string)
	s.Sources = nil
	s.ActiveProvider = ""
	s.Answer = ""
	s.Synthesized = false
	s.Degraded = false
	s.MemorySaved = false
}

// ApplyCheckpoint copies the committed history into the state.
func (s *State) ApplyCheckpoint(cp *Checkpoint) {
	if cp == nil {
		return
	}
	s.History = cp.RecentTurns(len(cp.Turns))
	s.LastRoute = cp.LastRoute()
	s.Version = cp.Version
}

// RecentTurns returns the last n turns of the loaded history.
func (s *State) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	start := max(len(s.History)-n, 0)
	return s.History[start:]
}

// AddAnswers merges handler answers, ignoring blank ones.
func (s *State) AddAnswers(answers map[RouteTag]string) {
	for route, answer := range answers {
		if answer != "" {
			s.DomainAnswers[route] = answer
		}
	}
}

// Answers returns a copy of the domain answers.
func (s *State) Answers() map[RouteTag]string {
	return maps.Clone(s.DomainAnswers)
}

// Turn builds the record to commit. Only the final answer and route leave
// the scratch area.
func (s *State) Turn(now time.Time) Turn {
	route := s.Route
	if !route.Valid() {
		route = RouteCombined
	}
	return Turn{
		UserText:      s.Query,
		AssistantText: s.Answer,
		Route:         route,
		Provider:      s.ActiveProvider,
		CreatedAt:     now.UTC(),
	}
}
