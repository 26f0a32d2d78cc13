package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/draft"
	"github.com/untoldecay/edda/internal/hooks"
	"github.com/untoldecay/edda/internal/ledger"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Propose, review, and apply commit drafts",
}

func init() {
	rootCmd.AddCommand(draftCmd)
}

func loadPolicyAndActors(ws *workspace) (draft.Policy, draft.Actors, error) {
	policy, err := draft.LoadPolicy(ws.PolicyPath())
	if err != nil {
		return draft.Policy{}, draft.Actors{}, err
	}
	actors, err := draft.LoadActors(ws.ActorsPath())
	if err != nil {
		return draft.Policy{}, draft.Actors{}, err
	}
	return policy, actors, nil
}

// --- propose ---

var (
	proposeSummary string
	proposeLabels  []string
	proposeRefs    []string
	proposeAuto    bool
	proposeActor   string
)

var draftProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a commit draft against the current evidence",
	RunE:  runDraftPropose,
}

func init() {
	draftProposeCmd.Flags().StringVar(&proposeSummary, "summary", "", "one-line summary of the proposed commit")
	draftProposeCmd.Flags().StringSliceVar(&proposeLabels, "label", nil, "labels used to evaluate the approval policy")
	draftProposeCmd.Flags().StringSliceVar(&proposeRefs, "evidence", nil, "manual evidence refs (event IDs or free text)")
	draftProposeCmd.Flags().BoolVar(&proposeAuto, "auto", false, "also include auto-evidence: one ref per active decision on the branch (other branch events are not included)")
	draftProposeCmd.Flags().StringVar(&proposeActor, "by", "", "acting actor")
	_ = draftProposeCmd.MarkFlagRequired("summary")
	draftCmd.AddCommand(draftProposeCmd)
}

func runDraftPropose(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	policy, actors, err := loadPolicyAndActors(ws)
	if err != nil {
		return err
	}

	manual := make([]draft.Evidence, 0, len(proposeRefs))
	for _, ref := range proposeRefs {
		manual = append(manual, draft.Evidence{EventID: ref})
	}

	var auto []draft.Evidence
	if proposeAuto {
		auto, err = autoEvidence(context.Background(), store, ws.Branch)
		if err != nil {
			return err
		}
	}

	d, err := draft.Propose(context.Background(), store, ws.StateDir, draft.ProposeInput{
		Branch:       ws.Branch,
		Summary:      proposeSummary,
		Labels:       proposeLabels,
		ManualRefs:   manual,
		Auto:         proposeAuto,
		AutoEvidence: auto,
		Actor:        proposeActor,
		Policy:       policy,
		Actors:       actors,
	})
	if err != nil {
		return fmt.Errorf("edda: propose draft: %w", err)
	}

	if jsonOutput {
		return printJSON(d)
	}
	fmt.Printf("proposed draft %s (%s)\n", d.ID, d.Status)
	return nil
}

// autoEvidence builds evidence refs out of the branch's currently active
// decisions, for callers that asked for --auto instead of (or in addition
// to) manual refs.
func autoEvidence(ctx context.Context, store *ledger.Store, branch string) ([]draft.Evidence, error) {
	decisions, err := store.ActiveDecisions(ctx, branch, "", "")
	if err != nil {
		return nil, fmt.Errorf("edda: load auto-evidence: %w", err)
	}
	out := make([]draft.Evidence, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, draft.Evidence{
			EventID: d.EventID,
			Note:    fmt.Sprintf("%s = %s", d.Key, d.Value),
			Auto:    true,
		})
	}
	return out, nil
}

// --- show / list ---

var draftShowCmd = &cobra.Command{
	Use:   "show <draft-id>",
	Short: "Show a single draft",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDraftShow,
}

func init() {
	draftCmd.AddCommand(draftShowCmd)
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	id := ""
	if len(args) == 1 {
		id = args[0]
	} else {
		id, err = draft.Latest(ws.StateDir)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("edda: no drafts proposed yet")
		}
	}

	d, err := draft.Load(ws.StateDir, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(d)
	}
	printDraftSummary(d)
	return nil
}

func printDraftSummary(d draft.Draft) {
	fmt.Printf("%s  %-9s %s\n", d.ID, d.Status, d.Summary)
	for _, ss := range d.Stages {
		fmt.Printf("  stage %-12s %-9s approvals=%d/%d\n", ss.Stage.Name, ss.Status, len(ss.Approvals), ss.Stage.MinApprovals)
	}
}

var draftListSince string

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts",
	RunE:  runDraftList,
}

func init() {
	draftListCmd.Flags().StringVar(&draftListSince, "since", "", `only list drafts created after this time, e.g. "3 days ago" or "2026-07-01"`)
	draftCmd.AddCommand(draftListCmd)
}

func runDraftList(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	drafts, err := draft.List(ws.StateDir)
	if err != nil {
		return err
	}

	if draftListSince != "" {
		cutoff, err := parseSince(draftListSince)
		if err != nil {
			return fmt.Errorf("edda: --since: %w", err)
		}
		filtered := drafts[:0]
		for _, d := range drafts {
			if d.CreatedAt.After(cutoff) {
				filtered = append(filtered, d)
			}
		}
		drafts = filtered
	}

	if jsonOutput {
		return printJSON(drafts)
	}
	for _, d := range drafts {
		printDraftSummary(d)
	}
	return nil
}

// --- inbox ---

var inboxActor string

var draftInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List pending stage approvals assigned to an actor",
	RunE:  runDraftInbox,
}

func init() {
	draftInboxCmd.Flags().StringVar(&inboxActor, "actor", "", "actor to list pending approvals for")
	_ = draftInboxCmd.MarkFlagRequired("actor")
	draftCmd.AddCommand(draftInboxCmd)
}

func runDraftInbox(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	_, actors, err := loadPolicyAndActors(ws)
	if err != nil {
		return err
	}
	entries, err := draft.Inbox(ws.StateDir, inboxActor, actors)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(entries)
	}
	fmt.Print(draft.RenderInbox(entries))
	return nil
}

// --- approve / reject ---

var (
	reviewStage string
	reviewBy    string
	reviewNote  string
)

func newReviewCmd(use string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <draft-id>",
		Short: use + " a draft or one of its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftReview(args[0], approve)
		},
	}
}

var draftApproveCmd = newReviewCmd("approve", true)
var draftRejectCmd = newReviewCmd("reject", false)

func init() {
	for _, c := range []*cobra.Command{draftApproveCmd, draftRejectCmd} {
		c.Flags().StringVar(&reviewStage, "stage", "", "stage name (required for staged drafts)")
		c.Flags().StringVar(&reviewBy, "by", "", "acting actor")
		c.Flags().StringVar(&reviewNote, "note", "", "optional note")
		draftCmd.AddCommand(c)
	}
}

func runDraftReview(draftID string, approve bool) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	actor, note, err := draft.ResolveActorAndNote(reviewBy, reviewNote)
	if err != nil {
		return err
	}

	_, actors, err := loadPolicyAndActors(ws)
	if err != nil {
		return err
	}

	head, err := store.LastEventHash(context.Background())
	if err != nil {
		return fmt.Errorf("edda: read head: %w", err)
	}

	d, err := draft.Review(context.Background(), store, ws.StateDir, draft.ApproveInput{
		DraftID:     draftID,
		Stage:       reviewStage,
		Actor:       actor,
		Note:        note,
		Approve:     approve,
		CurrentHead: head,
		Actors:      actors,
	})
	if err != nil {
		return fmt.Errorf("edda: review draft: %w", err)
	}

	if jsonOutput {
		return printJSON(d)
	}
	verb := "rejected"
	if approve {
		verb = "approved"
	}
	fmt.Printf("%s %s (now %s)\n", verb, d.ID, d.Status)
	return nil
}

// --- apply / delete ---

var applyDelete bool

var draftApplyCmd = &cobra.Command{
	Use:   "apply <draft-id>",
	Short: "Materialize an approved draft's commit event",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftApply,
}

func init() {
	draftApplyCmd.Flags().BoolVar(&applyDelete, "delete", false, "delete the draft file after applying")
	draftCmd.AddCommand(draftApplyCmd)
}

func runDraftApply(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	d, err := draft.Apply(context.Background(), store, ws.StateDir, draft.ApplyInput{
		DraftID: args[0],
		Delete:  applyDelete,
	})
	if err != nil {
		return fmt.Errorf("edda: apply draft: %w", err)
	}

	runLifecycleHook(ws, hooks.EventDraftApply, fmt.Sprintf("%s: %s", d.ID, d.Summary))

	if jsonOutput {
		return printJSON(d)
	}
	fmt.Printf("applied %s: %s\n", d.ID, d.Summary)
	return nil
}

var draftDeleteCmd = &cobra.Command{
	Use:   "delete <draft-id>",
	Short: "Delete a draft without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftDelete,
}

func init() {
	draftCmd.AddCommand(draftDeleteCmd)
}

func runDraftDelete(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := draft.Delete(ws.StateDir, args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", strings.TrimSpace(args[0]))
	return nil
}
