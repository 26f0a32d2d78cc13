package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/blobstore"
	"github.com/untoldecay/edda/internal/coordination"
	"github.com/untoldecay/edda/internal/hooks"
	"github.com/untoldecay/edda/internal/ledger"
)

var (
	decideReason string
	decideForce  bool
)

var decideCmd = &cobra.Command{
	Use:   "decide <key> <value>",
	Short: "Record a decision note in the ledger",
	Long: `Record a decision as a note event tagged "decision". A later decision
for the same key supersedes the prior active one rather than appending a
second active row. If another session holds a live coordination binding for
the same key with a different value, edda asks for confirmation first.`,
	Args: cobra.ExactArgs(2),
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().StringVar(&decideReason, "reason", "", "why this decision was made")
	decideCmd.Flags().BoolVar(&decideForce, "force", false, "override a conflicting coordination binding without confirming")
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	if err := confirmBindingConflict(ws, key, value); err != nil {
		return err
	}

	ctx := context.Background()
	prior, err := store.FindActiveDecision(ctx, ws.Branch, key)
	if err != nil {
		return fmt.Errorf("edda: look up prior decision: %w", err)
	}

	payload := ledger.NotePayload{
		Text: fmt.Sprintf("%s: %s", key, value),
		Tags: []string{"decision"},
		Decision: &ledger.DecisionFields{
			Key:    key,
			Value:  value,
			Reason: decideReason,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("edda: marshal decision: %w", err)
	}

	refs := ledger.Refs{}
	if prior != nil {
		refs.Provenance = []ledger.ProvenanceRef{{Target: prior.EventID, Rel: ledger.RelSupersedes}}
	}

	event, err := store.AppendEvent(ctx, ledger.Event{
		EventType: "note",
		Branch:    ws.Branch,
		Payload:   b,
		Refs:      refs,
	})
	if err != nil {
		return fmt.Errorf("edda: append decision: %w", err)
	}

	runLifecycleHook(ws, hooks.EventDecide, strings.Join(args, " "))

	if jsonOutput {
		return printJSON(event)
	}
	fmt.Printf("recorded %s = %s (%s)\n", key, value, event.EventID)
	return nil
}

// confirmBindingConflict checks the coordination board for a live binding on
// key that disagrees with value, and asks before proceeding unless
// --force was passed.
func confirmBindingConflict(ws *workspace, key, value string) error {
	if decideForce {
		return nil
	}
	log := coordination.Open(ws.CoordinationLogPath())
	state, err := log.DeriveBoardState()
	if err != nil {
		return fmt.Errorf("edda: read coordination board: %w", err)
	}
	conflict, ok := state.BindingConflict(key, value)
	if !ok {
		return nil
	}
	prompt := fmt.Sprintf("%s is bound to %q by %s; record %q anyway?", key, conflict.Value, conflict.ByLabel, value)
	proceed, err := blobstore.Confirm(prompt)
	if err != nil {
		return fmt.Errorf("edda: confirm binding conflict: %w", err)
	}
	if !proceed {
		return fmt.Errorf("edda: aborted: %s already bound to %q by %s", key, conflict.Value, conflict.ByLabel)
	}
	return nil
}
