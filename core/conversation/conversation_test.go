package conversation

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRouteTag(t *testing.T) {
	tests := []struct {
		input string
		want  RouteTag
		ok    bool
	}{
		{"tax", RouteTax, true},
		{" TAX ", RouteTax, true},
		{"payroll", RoutePayroll, true},
		{"paye", RoutePayroll, true},
		{"financial", RouteFinancial, true},
		{"combined", RouteCombined, true},
		{"both", RouteCombined, true},
		{"unset", RouteUnset, false},
		{"vat", RouteUnset, false},
		{"", RouteUnset, false},
	}
	for _, tt := range tests {
		got, ok := ParseRouteTag(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRouteTag(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRouteTag_TextRoundTrip(t *testing.T) {
	turn := Turn{UserText: "q", AssistantText: "a", Route: RoutePayroll}
	data, err := json.Marshal(turn)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Turn
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Route != RoutePayroll {
		t.Fatalf("expected payroll, got %v (json %s)", decoded.Route, data)
	}

	var bad RouteTag
	if err := bad.UnmarshalText([]byte("weather")); err == nil {
		t.Fatal("expected error for unknown route label")
	}
}

func TestCheckpoint_RecentTurnsAndLastRoute(t *testing.T) {
	var empty *Checkpoint
	if !empty.Empty() || empty.LastRoute() != RouteUnset {
		t.Fatal("nil checkpoint must be empty with unset route")
	}

	cp := &Checkpoint{Turns: []Turn{
		{UserText: "1", Route: RouteTax},
		{UserText: "2", Route: RoutePayroll},
		{UserText: "3", Route: RouteFinancial},
	}}
	if cp.LastRoute() != RouteFinancial {
		t.Fatalf("unexpected last route %v", cp.LastRoute())
	}

	recent := cp.RecentTurns(2)
	if len(recent) != 2 || recent[0].UserText != "2" || recent[1].UserText != "3" {
		t.Fatalf("unexpected recent turns: %+v", recent)
	}
	recent[0].UserText = "mutated"
	if cp.Turns[1].UserText != "2" {
		t.Fatal("RecentTurns must return a copy")
	}
	if len(cp.RecentTurns(10)) != 3 {
		t.Fatal("expected all turns when n exceeds length")
	}
}

func TestCheckpoint_CloneIsDeep(t *testing.T) {
	cp := &Checkpoint{Turns: []Turn{{UserText: "a"}}, Version: 1}
	clone := cp.Clone()
	clone.Turns[0].UserText = "b"
	if cp.Turns[0].UserText != "a" {
		t.Fatal("clone shares the turn slice")
	}
}

func TestState_ScratchDoesNotLeakIntoTurn(t *testing.T) {
	s := NewState(ThreadKey{UserID: "u1", ThreadID: "t1"}, "How is PAYE calculated?")
	s.Route = RoutePayroll
	s.AddAnswers(map[RouteTag]string{RoutePayroll: "answer", RouteTax: ""})
	s.Sources = []Source{{Text: "excerpt", Origin: "paye.pdf"}}
	s.Answer = "final"
	s.ActiveProvider = "groq"

	if _, ok := s.DomainAnswers[RouteTax]; ok {
		t.Fatal("blank answers must be ignored")
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("WAT", 3600))
	turn := s.Turn(now)
	if turn.AssistantText != "final" || turn.Route != RoutePayroll || turn.Provider != "groq" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if turn.CreatedAt.Location() != time.UTC {
		t.Fatal("expected UTC timestamp")
	}

	s.ResetScratch()
	if len(s.DomainAnswers) != 0 || s.Sources != nil || s.Answer != "" || s.Route != RouteUnset {
		t.Fatalf("scratch not cleared: %+v", s)
	}
}

func TestState_TurnDefaultsUnsetRouteToCombined(t *testing.T) {
	s := NewState(ThreadKey{UserID: "u", ThreadID: "t"}, "q")
	if got := s.Turn(time.Now()).Route; got != RouteCombined {
		t.Fatalf("expected combined, got %v", got)
	}
}

func TestThreadKey_Validate(t *testing.T) {
	if err := (ThreadKey{UserID: "u"}).Validate(); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if err := (ThreadKey{UserID: "u", ThreadID: "t"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
