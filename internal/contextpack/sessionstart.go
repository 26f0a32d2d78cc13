package contextpack

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/untoldecay/edda/internal/coordination"
	"github.com/untoldecay/edda/internal/digest"
	"github.com/untoldecay/edda/internal/ledger"
)

// SessionStartInputs gathers everything BuildSessionStart needs. Fields a
// caller can't supply (no active plan file, no peers yet) are left zero.
type SessionStartInputs struct {
	Store         *ledger.Store
	Branch        string
	SessionID     string
	StateDir      string
	ActivePlanPath string // e.g. .edda/PLAN.md; "" if none
	Budget        int     // <=0 uses DefaultBudget
}

// BuildSessionStart renders the full body+tail briefing for a SessionStart
// hook and returns it ready to pass to Wrap.
func BuildSessionStart(ctx context.Context, in SessionStartInputs) (string, error) {
	budget := in.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	var body strings.Builder

	hotPack, err := renderHotPack(ctx, in.Store, in.Branch)
	if err != nil {
		return "", err
	}
	body.WriteString(hotPack)

	if plan := renderActivePlan(in.ActivePlanPath); plan != "" {
		body.WriteString(plan)
	}

	narrative, err := renderNarrative(ctx, in)
	if err != nil {
		return "", err
	}
	body.WriteString(narrative)

	if snap, err := digest.ReadPrevDigestSnapshot(in.StateDir); err == nil && snap != nil {
		fmt.Fprintf(&body, "## Previous session\n\n%s\n\n", snap.Summary)
	}

	if warning, err := digest.PendingFailureWarning(in.StateDir); err == nil && warning != "" {
		fmt.Fprintf(&body, "> ⚠️ %s\n\n", warning)
	}

	tail := renderTail(in.StateDir, in.SessionID)

	truncatedBody := truncateToBudget(body.String(), budget-len(tail))
	return truncatedBody + tail, nil
}

func renderHotPack(ctx context.Context, store *ledger.Store, branch string) (string, error) {
	decisions, err := store.ActiveDecisions(ctx, branch, "", "")
	if err != nil {
		return "", fmt.Errorf("contextpack: render hot pack: %w", err)
	}
	if len(decisions) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("## Active decisions\n\n")
	for _, d := range decisions {
		fmt.Fprintf(&b, "- **%s** = %s", d.Key, d.Value)
		if d.Reason != "" {
			fmt.Fprintf(&b, " _(%s)_", d.Reason)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String(), nil
}

// renderActivePlan reads an optional workspace plan file and includes it
// verbatim, the way prime.go lets a project override PRIME.md — here the
// override is additive rather than a full replacement.
func renderActivePlan(path string) string {
	if path == "" {
		return ""
	}
	content, err := os.ReadFile(path) // #nosec G304 -- path is a workspace-configured plan file
	if err != nil {
		return ""
	}
	return "## Active plan\n\n" + strings.TrimSpace(string(content)) + "\n\n"
}

func renderNarrative(ctx context.Context, in SessionStartInputs) (string, error) {
	var b strings.Builder

	sessions, err := LoadHistory(ctx, in.Store, in.Branch)
	if err != nil {
		return "", err
	}

	if persistent := PersistentTasks(sessions); len(persistent) > 0 {
		b.WriteString("## Persistent tasks\n\n")
		for _, subject := range persistent {
			fmt.Fprintf(&b, "- %s\n", subject)
		}
		b.WriteString("\n")
	}

	b.WriteString(RenderHistory(sessions))

	return b.String(), nil
}

func renderTail(stateDir, sessionID string) string {
	var b strings.Builder
	b.WriteString("\n## Write-back protocol\n\n")
	b.WriteString("Record durable decisions with `edda decide <key> <value> --reason \"...\"`. ")
	b.WriteString("List the other sessions active in this workspace with `edda peers`.\n")

	peers, err := coordination.DiscoverPeers(stateDir, sessionID, StaleAfter)
	if err == nil && len(peers) > 0 {
		b.WriteString("\n## Coordination protocol\n\n")
		b.WriteString("Other sessions are active in this workspace:\n\n")
		for _, p := range peers {
			label := p.Label
			if label == "" {
				label = p.SessionID
			}
			fmt.Fprintf(&b, "- %s (last active %s ago)\n", label, p.Age.Round(time.Second))
		}
		b.WriteString("\nCheck `edda peers` before editing shared files.\n")
	}
	return b.String()
}
