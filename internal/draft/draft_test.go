package draft

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/edda/internal/ledger"
)

func setupDraftEnv(t *testing.T) (*ledger.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, filepath.Join(dir, "state")
}

func TestProposeNoApprovalRequiredMarksApprovedImmediately(t *testing.T) {
	store, stateDir := setupDraftEnv(t)
	ctx := context.Background()

	d, err := Propose(ctx, store, stateDir, ProposeInput{
		Branch:  "main",
		Summary: "adopt sqlite for the ledger",
		Policy:  Policy{Rules: []Rule{{When: When{Default: true}}}},
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if d.Status != StatusApproved {
		t.Fatalf("Status = %q, want approved", d.Status)
	}

	got, err := Load(stateDir, d.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != d.ID {
		t.Fatalf("loaded draft ID = %q, want %q", got.ID, d.ID)
	}
}

func TestProposeStagedDraftRequiresApproval(t *testing.T) {
	store, stateDir := setupDraftEnv(t)
	ctx := context.Background()

	policy := Policy{Rules: []Rule{{
		When:   When{Default: true},
		Stages: []Stage{{Name: "review", Role: "reviewer", MinApprovals: 1}},
	}}}
	actors := Actors{Actors: []Actor{{Name: "alice", Roles: []string{"reviewer"}}}}

	d, err := Propose(ctx, store, stateDir, ProposeInput{
		Branch:  "main",
		Summary: "switch http router",
		Policy:  policy,
		Actors:  actors,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if d.Status != StatusPending {
		t.Fatalf("Status = %q, want pending", d.Status)
	}
	if len(d.Stages) != 1 || len(d.Stages[0].Stage.Assignees) != 1 || d.Stages[0].Stage.Assignees[0] != "alice" {
		t.Fatalf("stages = %+v, want role expanded to alice", d.Stages)
	}

	latest, err := Latest(stateDir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != d.ID {
		t.Fatalf("Latest = %q, want %q", latest, d.ID)
	}
}

func TestApproveRejectApplyLifecycle(t *testing.T) {
	store, stateDir := setupDraftEnv(t)
	ctx := context.Background()

	policy := Policy{Rules: []Rule{{
		When:   When{Default: true},
		Stages: []Stage{{Name: "review", Role: "reviewer", MinApprovals: 1}},
	}}}
	actors := Actors{Actors: []Actor{{Name: "alice", Roles: []string{"reviewer"}}}}

	d, err := Propose(ctx, store, stateDir, ProposeInput{
		Branch:  "main",
		Summary: "switch http router",
		Policy:  policy,
		Actors:  actors,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	head, err := store.LastEventHash(ctx)
	if err != nil {
		t.Fatalf("LastEventHash: %v", err)
	}

	if _, err := Review(ctx, store, stateDir, ApproveInput{
		DraftID:     d.ID,
		Stage:       "review",
		Actor:       "bob",
		Approve:     true,
		CurrentHead: head,
		Actors:      actors,
	}); err != ErrNotAuthorized {
		t.Fatalf("unauthorized reviewer err = %v, want ErrNotAuthorized", err)
	}

	approved, err := Review(ctx, store, stateDir, ApproveInput{
		DraftID:     d.ID,
		Stage:       "review",
		Actor:       "alice",
		Approve:     true,
		CurrentHead: head,
		Actors:      actors,
	})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("Status = %q, want approved", approved.Status)
	}

	applied, err := Apply(ctx, store, stateDir, ApplyInput{DraftID: d.ID})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.Status != StatusApplied {
		t.Fatalf("Status = %q, want applied", applied.Status)
	}
	found := false
	for _, l := range applied.Labels {
		if l == "approved" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Labels = %v, want to include approved", applied.Labels)
	}
}

func TestApplyRejectsWithoutApproval(t *testing.T) {
	store, stateDir := setupDraftEnv(t)
	ctx := context.Background()

	policy := Policy{Rules: []Rule{{
		When:   When{Default: true},
		Stages: []Stage{{Name: "review", Role: "reviewer", MinApprovals: 1}},
	}}}
	d, err := Propose(ctx, store, stateDir, ProposeInput{Branch: "main", Summary: "x", Policy: policy})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if _, err := Apply(ctx, store, stateDir, ApplyInput{DraftID: d.ID}); err != ErrNotApproved {
		t.Fatalf("Apply err = %v, want ErrNotApproved", err)
	}
}
