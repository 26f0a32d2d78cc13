package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/edda/internal/ledger"
)

// ProposeInput is everything Propose needs to build and persist a draft.
type ProposeInput struct {
	Branch       string
	Summary      string
	Labels       []string
	ManualRefs   []Evidence
	Auto         bool
	AutoEvidence []Evidence
	Actor        string
	Policy       Policy
	Actors       Actors
}

// Propose evaluates the policy against a draft's evidence and labels,
// expands the matched rule's stages against the actors table, writes the
// draft file, and appends an approval_request event to the ledger for each
// stage (skipped entirely for a no-approval-required match).
func Propose(ctx context.Context, store *ledger.Store, stateDir string, in ProposeInput) (Draft, error) {
	evidence := append([]Evidence{}, in.ManualRefs...)
	if len(evidence) == 0 || in.Auto {
		evidence = append(evidence, in.AutoEvidence...)
	}

	failedCmd := false
	for _, ev := range evidence {
		if ev.Note != "" && containsFailedMarker(ev.Note) {
			failedCmd = true
			break
		}
	}

	stages := Evaluate(in.Policy, in.Labels, failedCmd, len(evidence))
	stageStates := make([]StageState, 0, len(stages))
	for _, st := range stages {
		assignees := st.Assignees
		if len(assignees) == 0 && st.Role != "" {
			assignees = in.Actors.ExpandRole(st.Role, st.MaxAssignees)
		}
		st.Assignees = assignees
		stageStates = append(stageStates, StageState{Stage: st, Status: StageStatusPending})
	}

	head, err := store.LastEventHash(ctx)
	if err != nil {
		return Draft{}, fmt.Errorf("draft: read head: %w", err)
	}

	d := Draft{
		ID:             ledger.NewEventID(),
		Branch:         in.Branch,
		Summary:        in.Summary,
		Labels:         in.Labels,
		Evidence:       evidence,
		Stages:         stageStates,
		Status:         StatusPending,
		BaseParentHash: head,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      in.Actor,
	}
	if len(stageStates) == 0 {
		d.Status = StatusApproved
	}

	for _, ss := range stageStates {
		if err := appendApprovalRequest(ctx, store, in.Branch, d.ID, ss); err != nil {
			return Draft{}, err
		}
	}

	if err := Save(stateDir, d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func containsFailedMarker(note string) bool {
	return strings.Contains(note, "exit code") || strings.Contains(note, "exit_code") || strings.Contains(note, "failed")
}

// ApprovalRequestPayload is the payload of an approval_request event.
type ApprovalRequestPayload struct {
	DraftID string   `json:"draft_id"`
	Stage   string   `json:"stage"`
	Role    string   `json:"role,omitempty"`
	Assign  []string `json:"assignees,omitempty"`
}

func appendApprovalRequest(ctx context.Context, store *ledger.Store, branch, draftID string, ss StageState) error {
	payload := ApprovalRequestPayload{
		DraftID: draftID,
		Stage:   ss.Stage.Name,
		Role:    ss.Stage.Role,
		Assign:  ss.Stage.Assignees,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("draft: marshal approval_request: %w", err)
	}
	_, err = store.AppendEvent(ctx, ledger.Event{
		EventType: "approval_request",
		Branch:    branch,
		Payload:   b,
	})
	if err != nil {
		return fmt.Errorf("draft: append approval_request: %w", err)
	}
	return nil
}
