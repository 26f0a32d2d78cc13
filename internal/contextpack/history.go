package contextpack

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/untoldecay/edda/internal/digest"
	"github.com/untoldecay/edda/internal/ledger"
	"github.com/untoldecay/edda/internal/signals"
)

// SessionSummary is one digested session, ready for tiered rendering.
type SessionSummary struct {
	EventID string
	Ts      string
	Stats   signals.SessionStats
	Note    string
}

// LoadHistory returns every digested session on branch, newest first.
func LoadHistory(ctx context.Context, store *ledger.Store, branch string) ([]SessionSummary, error) {
	events, err := store.IterEvents(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("contextpack: load history: %w", err)
	}

	var out []SessionSummary
	for _, e := range events {
		if e.EventType != "note" {
			continue
		}
		note, ok := digest.ParseDigestedNote(e.Payload)
		if !ok {
			continue
		}
		out = append(out, SessionSummary{
			EventID: e.EventID,
			Ts:      e.Ts.Format("2006-01-02"),
			Note:    note.Text,
			Stats: signals.SessionStats{
				ToolCalls:     note.Stats.ToolCalls,
				UserPrompts:   note.Stats.UserPrompts,
				Tasks:         note.Stats.Tasks,
				FilesModified: note.Stats.FilesModified,
				Commits:       note.Stats.Commits,
				FailedCmds:    note.Stats.FailedCmds,
				Outcome:       note.Stats.Outcome,
			},
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Ts > out[j].Ts })
	return out, nil
}

// RenderHistory tiers session summaries: the newest gets full detail,
// sessions 2..5 get one-liners, the rest are aggregated into a single
// count line.
func RenderHistory(sessions []SessionSummary) string {
	if len(sessions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Recent sessions\n\n")

	for i, s := range sessions {
		switch {
		case i < tierFull:
			renderFull(&b, s)
		case i < tierFull+tierOneLiner:
			renderOneLiner(&b, s)
		default:
			remaining := len(sessions) - (tierFull + tierOneLiner)
			if remaining > 0 {
				fmt.Fprintf(&b, "- …and %d earlier session(s)\n", remaining)
			}
			return b.String()
		}
	}
	return b.String()
}

func renderFull(b *strings.Builder, s SessionSummary) {
	fmt.Fprintf(b, "### %s (%s)\n\n", s.Ts, s.Stats.Outcome)

	var done, wip []signals.Task
	for _, t := range s.Stats.Tasks {
		if t.Status == "completed" {
			done = append(done, t)
		} else {
			wip = append(wip, t)
		}
	}
	if len(done) > 0 {
		b.WriteString("Done:\n")
		for _, t := range done {
			fmt.Fprintf(b, "- [x] %s\n", t.Subject)
		}
	}
	if len(wip) > 0 {
		b.WriteString("WIP:\n")
		for _, t := range wip {
			fmt.Fprintf(b, "- [ ] %s (%s)\n", t.Subject, t.Status)
		}
	}
	if len(s.Stats.FilesModified) > 0 {
		fmt.Fprintf(b, "Files touched: %d\n", len(s.Stats.FilesModified))
	}
	for _, c := range s.Stats.Commits {
		fmt.Fprintf(b, "- commit `%s` %s\n", shortHash(c.Hash), c.Message)
	}
	for _, fc := range s.Stats.FailedCmds {
		fmt.Fprintf(b, "- unresolved: `%s`: %s\n", fc.Base, truncateAt(fc.Snippet, 120))
	}
	if s.Note != "" {
		fmt.Fprintf(b, "\n%s\n", s.Note)
	}
	b.WriteString("\n")
}

func renderOneLiner(b *strings.Builder, s SessionSummary) {
	fmt.Fprintf(b, "- %s: %s, %d commit(s), %d file(s)", s.Ts, s.Stats.Outcome, len(s.Stats.Commits), len(s.Stats.FilesModified))
	if s.Note != "" {
		fmt.Fprintf(b, " — %s", truncateAt(s.Note, 37))
	}
	b.WriteString("\n")
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func truncateAt(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// PersistentTasks returns task subjects pending (not completed) in at
// least two sessions, ranked by streak (how many of the most recent
// sessions, starting from the newest, contain them consecutively).
func PersistentTasks(sessions []SessionSummary) []string {
	counts := map[string]int{}
	streaks := map[string]int{}

	for i, s := range sessions {
		seen := map[string]bool{}
		for _, t := range s.Stats.Tasks {
			if t.Status == "completed" || seen[t.Subject] {
				continue
			}
			seen[t.Subject] = true
			counts[t.Subject]++
			if streaks[t.Subject] == i {
				streaks[t.Subject]++
			}
		}
	}

	var persistent []string
	for subject, n := range counts {
		if n >= 2 {
			persistent = append(persistent, subject)
		}
	}
	sort.Slice(persistent, func(i, j int) bool {
		if streaks[persistent[i]] != streaks[persistent[j]] {
			return streaks[persistent[i]] > streaks[persistent[j]]
		}
		return persistent[i] < persistent[j]
	})
	return persistent
}
