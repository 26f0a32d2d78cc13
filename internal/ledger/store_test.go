package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func notePayload(t *testing.T, p NotePayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAppendEventChainsHashes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.AppendEvent(ctx, Event{EventType: "note", Branch: "main", Payload: notePayload(t, NotePayload{Text: "hello"})})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.ParentHash != "" {
		t.Fatalf("first event parent_hash = %q, want empty", first.ParentHash)
	}

	second, err := s.AppendEvent(ctx, Event{EventType: "note", Branch: "main", Payload: notePayload(t, NotePayload{Text: "world"})})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.ParentHash != first.Hash {
		t.Fatalf("second.ParentHash = %q, want %q", second.ParentHash, first.Hash)
	}

	head, err := s.LastEventHash(ctx)
	if err != nil {
		t.Fatalf("LastEventHash: %v", err)
	}
	if head != second.Hash {
		t.Fatalf("head = %q, want %q", head, second.Hash)
	}
}

func TestComputeHashIsReproducible(t *testing.T) {
	e := Seal(Event{EventType: "note", Branch: "main", Payload: notePayload(t, NotePayload{Text: "x"})})
	if got := ComputeHash(e); got != e.Hash {
		t.Fatalf("re-hashing event produced %q, want %q", got, e.Hash)
	}
}

func TestDecisionSupersession(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.AppendEvent(ctx, Event{
		EventType: "note", Branch: "main",
		Payload: notePayload(t, NotePayload{Tags: []string{"decision"}, Decision: &DecisionFields{Key: "db.engine", Value: "mysql", Reason: "familiarity"}}),
	})
	if err != nil {
		t.Fatalf("append first decision: %v", err)
	}

	_, err = s.AppendEvent(ctx, Event{
		EventType: "note", Branch: "main",
		Payload: notePayload(t, NotePayload{Tags: []string{"decision"}, Decision: &DecisionFields{Key: "db.engine", Value: "postgres", Reason: "json support"}}),
		Refs:     Refs{Provenance: []ProvenanceRef{{Target: first.EventID, Rel: RelSupersedes}}},
	})
	if err != nil {
		t.Fatalf("append second decision: %v", err)
	}

	active, err := s.FindActiveDecision(ctx, "main", "db.engine")
	if err != nil {
		t.Fatalf("FindActiveDecision: %v", err)
	}
	if active == nil || active.Value != "postgres" {
		t.Fatalf("active decision = %+v, want postgres", active)
	}

	timeline, err := s.DecisionTimeline(ctx, "main", "db.engine")
	if err != nil {
		t.Fatalf("DecisionTimeline: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("timeline length = %d, want 2", len(timeline))
	}
	if timeline[0].IsActive {
		t.Fatalf("first (superseded) row is still active")
	}
	if !timeline[1].IsActive {
		t.Fatalf("second row is not active")
	}
	if timeline[1].SupersedesID != first.EventID {
		t.Fatalf("supersedes_id = %q, want %q", timeline[1].SupersedesID, first.EventID)
	}
}

func TestAtMostOneActiveDecisionPerKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		val := []string{"a", "b", "c"}[i]
		if _, err := s.AppendEvent(ctx, Event{
			EventType: "note", Branch: "main",
			Payload: notePayload(t, NotePayload{Tags: []string{"decision"}, Decision: &DecisionFields{Key: "x.y", Value: val}}),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	active, err := s.ActiveDecisions(ctx, "main", "", "")
	if err != nil {
		t.Fatalf("ActiveDecisions: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active decisions = %d, want 1", len(active))
	}
	if active[0].Value != "c" {
		t.Fatalf("active value = %q, want c", active[0].Value)
	}
}
