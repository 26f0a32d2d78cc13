package draft

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InboxEntry is one pending stage assigned to an actor or role, surfaced by
// Inbox for "edda draft inbox".
type InboxEntry struct {
	DraftID string
	Summary string
	Stage   string
	Role    string
}

// Inbox returns every pending stage across drafts in stateDir that actor is
// eligible to act on: an explicit assignee, or a holder of the stage's
// role per actors.
func Inbox(stateDir string, actor string, actors Actors) ([]InboxEntry, error) {
	drafts, err := List(stateDir)
	if err != nil {
		return nil, err
	}
	var out []InboxEntry
	for _, d := range drafts {
		if d.Status != StatusPending {
			continue
		}
		for _, ss := range d.Stages {
			if ss.Status != StageStatusPending {
				continue
			}
			if !authorized(actor, ss.Stage, actors) {
				continue
			}
			out = append(out, InboxEntry{
				DraftID: d.ID,
				Summary: d.Summary,
				Stage:   ss.Stage.Name,
				Role:    ss.Stage.Role,
			})
		}
	}
	return out, nil
}

var roleBadgeColors = map[string]lipgloss.Color{
	"owner":    lipgloss.Color("62"),
	"reviewer": lipgloss.Color("214"),
	"security": lipgloss.Color("196"),
}

func roleBadgeColor(role string) lipgloss.Color {
	if c, ok := roleBadgeColors[role]; ok {
		return c
	}
	return lipgloss.Color("245")
}

// RenderInbox formats entries as a styled table in TTY mode (role badges
// colored per roleBadgeColors, a pending-count badge), degrading to plain
// text when termenv detects a dumb terminal or color output is off.
func RenderInbox(entries []InboxEntry) string {
	if len(entries) == 0 {
		return "Inbox is empty.\n"
	}

	profile := termenv.ColorProfile()
	plain := profile == termenv.Ascii

	var b strings.Builder
	countBadge := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d pending", len(entries)))
	if plain {
		countBadge = fmt.Sprintf("%d pending", len(entries))
	}
	fmt.Fprintf(&b, "%s\n\n", countBadge)

	for _, e := range entries {
		roleLabel := e.Role
		if !plain && roleLabel != "" {
			roleLabel = lipgloss.NewStyle().
				Foreground(roleBadgeColor(e.Role)).
				Bold(true).
				Render(e.Role)
		}
		fmt.Fprintf(&b, "- [%s/%s] %s (%s)\n", e.DraftID, e.Stage, e.Summary, roleLabel)
	}
	return b.String()
}
