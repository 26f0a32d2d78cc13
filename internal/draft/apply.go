package draft

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/untoldecay/edda/internal/ledger"
)

// ErrNotApproved is returned by Apply when the draft's stages (or flat
// approval count) have not all cleared.
var ErrNotApproved = fmt.Errorf("draft: not fully approved")

// ErrAlreadyRejected is returned by Apply against a rejected draft.
var ErrAlreadyRejected = fmt.Errorf("draft: draft was rejected")

// CommitPayload is the payload of the commit event a draft materializes.
type CommitPayload struct {
	Summary  string     `json:"summary"`
	Labels   []string   `json:"labels,omitempty"`
	Evidence []Evidence `json:"evidence"`
	DraftID  string     `json:"draft_id"`
}

// ApplyInput parameterizes Apply.
type ApplyInput struct {
	DraftID string
	Delete  bool
}

// Apply gates a draft on approval status, rebases it onto the current
// head if the branch has advanced since it was proposed, materializes its
// commit event, marks it applied, and optionally deletes the draft file.
func Apply(ctx context.Context, store *ledger.Store, stateDir string, in ApplyInput) (Draft, error) {
	d, err := Load(stateDir, in.DraftID)
	if err != nil {
		return Draft{}, err
	}

	if d.Status == StatusRejected {
		return Draft{}, ErrAlreadyRejected
	}
	if !readyToApply(d) {
		return Draft{}, ErrNotApproved
	}

	head, err := store.LastEventHash(ctx)
	if err != nil {
		return Draft{}, fmt.Errorf("draft: read head: %w", err)
	}

	labels := append([]string{}, d.Labels...)
	if head != d.BaseParentHash {
		labels = append(labels, "draft_rebased")
	}
	if requiredApproval(d) {
		labels = append(labels, "approved")
	}

	payload := CommitPayload{
		Summary:  d.Summary,
		Labels:   labels,
		Evidence: d.Evidence,
		DraftID:  d.ID,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Draft{}, fmt.Errorf("draft: marshal commit: %w", err)
	}
	if _, err := store.AppendEvent(ctx, ledger.Event{
		EventType: "commit",
		Branch:    d.Branch,
		Payload:   b,
	}); err != nil {
		return Draft{}, fmt.Errorf("draft: append commit: %w", err)
	}

	d.Status = StatusApplied
	d.Labels = labels

	if in.Delete {
		if err := Delete(stateDir, d.ID); err != nil {
			return Draft{}, err
		}
		return d, nil
	}
	if err := Save(stateDir, d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func readyToApply(d Draft) bool {
	if d.IsStaged() {
		for _, ss := range d.Stages {
			if ss.Status != StageStatusApproved {
				return false
			}
		}
		return true
	}
	if d.FlatMinApprove == 0 {
		return true
	}
	return len(d.FlatApprovals) >= d.FlatMinApprove
}

func requiredApproval(d Draft) bool {
	if d.IsStaged() {
		return len(d.Stages) > 0
	}
	return d.FlatMinApprove > 0
}
