package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/untoldecay/edda/internal/ledger"
)

// ErrBranchMoved is returned by Review (approve or reject) when the draft's
// branch is no longer the caller's current HEAD.
var ErrBranchMoved = fmt.Errorf("draft: branch has moved since this draft was proposed")

// ErrNotAuthorized is returned when actor is neither an assignee of the
// targeted stage nor a holder of its role.
var ErrNotAuthorized = fmt.Errorf("draft: actor not authorized for this stage")

// ErrStageRequired is returned by Approve/Reject against a staged draft
// called without a stage name.
var ErrStageRequired = fmt.Errorf("draft: stage is required for a staged draft")

// ApproveInput parameterizes an approve/reject action against one draft.
type ApproveInput struct {
	DraftID     string
	Stage       string
	Actor       string
	Note        string
	Approve     bool
	CurrentHead string
	Actors      Actors
}

// Review applies an approve or reject to a draft's stage (or, for a flat
// draft, to the draft as a whole), persists the transition, and appends an
// approval event to the ledger.
func Review(ctx context.Context, store *ledger.Store, stateDir string, in ApproveInput) (Draft, error) {
	d, err := Load(stateDir, in.DraftID)
	if err != nil {
		return Draft{}, err
	}
	if d.BaseParentHash != in.CurrentHead {
		return Draft{}, ErrBranchMoved
	}

	if d.IsStaged() {
		if in.Stage == "" {
			return Draft{}, ErrStageRequired
		}
		if err := reviewStaged(&d, in); err != nil {
			return Draft{}, err
		}
	} else {
		reviewFlat(&d, in)
	}

	sha := d.SHA256()
	d.History = append(d.History, Approval{
		Ts:          time.Now().UTC(),
		Actor:       in.Actor,
		Stage:       in.Stage,
		Approved:    in.Approve,
		Note:        in.Note,
		DraftSHA256: sha,
	})

	if err := appendApprovalEvent(ctx, store, d.Branch, d.ID, in, sha); err != nil {
		return Draft{}, err
	}
	if err := Save(stateDir, d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func reviewStaged(d *Draft, in ApproveInput) error {
	idx := -1
	for i, ss := range d.Stages {
		if ss.Stage.Name == in.Stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("draft: unknown stage %q", in.Stage)
	}
	ss := &d.Stages[idx]
	if ss.Status != StageStatusPending {
		return fmt.Errorf("draft: stage %q is not pending", in.Stage)
	}
	if !authorized(in.Actor, ss.Stage, in.Actors) {
		return ErrNotAuthorized
	}

	if !in.Approve {
		ss.Status = StageStatusRejected
		d.Status = StatusRejected
		return nil
	}

	ss.Approvals = append(ss.Approvals, in.Actor)
	if len(ss.Approvals) >= ss.Stage.MinApprovals {
		ss.Status = StageStatusApproved
	}

	allApproved := true
	for _, s := range d.Stages {
		if s.Status != StageStatusApproved {
			allApproved = false
			break
		}
	}
	if allApproved {
		d.Status = StatusApproved
	}
	return nil
}

func authorized(actor string, st Stage, actors Actors) bool {
	for _, a := range st.Assignees {
		if a == actor {
			return true
		}
	}
	if st.Role != "" {
		return actors.HasRole(actor, st.Role)
	}
	return len(actors.Actors) == 0
}

func reviewFlat(d *Draft, in ApproveInput) {
	if !in.Approve {
		d.Status = StatusRejected
		return
	}
	d.FlatApprovals = append(d.FlatApprovals, in.Actor)
	if len(d.FlatApprovals) >= d.FlatMinApprove {
		d.Status = StatusApproved
	}
}

// ApprovalEventPayload is the payload of an approval event.
type ApprovalEventPayload struct {
	DraftID     string `json:"draft_id"`
	Stage       string `json:"stage,omitempty"`
	Actor       string `json:"actor"`
	Approved    bool   `json:"approved"`
	Note        string `json:"note,omitempty"`
	DraftSHA256 string `json:"draft_sha256"`
}

func appendApprovalEvent(ctx context.Context, store *ledger.Store, branch, draftID string, in ApproveInput, sha string) error {
	payload := ApprovalEventPayload{
		DraftID:     draftID,
		Stage:       in.Stage,
		Actor:       in.Actor,
		Approved:    in.Approve,
		Note:        in.Note,
		DraftSHA256: sha,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("draft: marshal approval: %w", err)
	}
	_, err = store.AppendEvent(ctx, ledger.Event{
		EventType: "approval",
		Branch:    branch,
		Payload:   b,
	})
	if err != nil {
		return fmt.Errorf("draft: append approval: %w", err)
	}
	return nil
}
