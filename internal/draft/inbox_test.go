package draft

import (
	"context"
	"strings"
	"testing"
)

func TestInboxListsOnlyEntriesActorCanAct(t *testing.T) {
	store, stateDir := setupDraftEnv(t)
	ctx := context.Background()

	policy := Policy{Rules: []Rule{{
		When:   When{Default: true},
		Stages: []Stage{{Name: "review", Role: "reviewer", MinApprovals: 1}},
	}}}
	actors := Actors{Actors: []Actor{{Name: "alice", Roles: []string{"reviewer"}}}}

	if _, err := Propose(ctx, store, stateDir, ProposeInput{
		Branch: "main", Summary: "add cache layer", Policy: policy, Actors: actors,
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	entries, err := Inbox(stateDir, "alice", actors)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(entries) != 1 || entries[0].Summary != "add cache layer" {
		t.Fatalf("Inbox(alice) = %+v", entries)
	}

	entries, err = Inbox(stateDir, "bob", actors)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Inbox(bob) = %+v, want empty", entries)
	}
}

func TestRenderInboxIncludesSummaryAndCount(t *testing.T) {
	out := RenderInbox([]InboxEntry{{DraftID: "d1", Summary: "add cache layer", Stage: "review", Role: "reviewer"}})
	if !strings.Contains(out, "add cache layer") || !strings.Contains(out, "1 pending") {
		t.Fatalf("RenderInbox output = %q", out)
	}
}

func TestRenderInboxEmpty(t *testing.T) {
	out := RenderInbox(nil)
	if !strings.Contains(out, "empty") {
		t.Fatalf("RenderInbox(nil) = %q", out)
	}
}
