package contextpack

import (
	"fmt"
	"strings"

	"github.com/untoldecay/edda/internal/signals"
)

// SessionEndWarning renders the "still pending" warning SessionEnd emits
// when tasks remain incomplete, listing up to five subjects. Returns "" if
// nothing is pending.
func SessionEndWarning(stats signals.SessionStats) string {
	var pending []string
	for _, t := range stats.Tasks {
		if t.Status != "completed" {
			pending = append(pending, t.Subject)
		}
	}
	if len(pending) == 0 {
		return ""
	}

	total := len(pending)
	shown := pending
	if len(shown) > 5 {
		shown = shown[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ %d task(s) still pending at session end:\n\n", total)
	for _, subject := range shown {
		fmt.Fprintf(&b, "- %s\n", subject)
	}
	return b.String()
}
