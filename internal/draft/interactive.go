package draft

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/untoldecay/edda/internal/ui"
)

// ErrInteractiveRequired is returned when --by/--note are missing and
// stdout is not a TTY, so an interactive prompt isn't possible.
var ErrInteractiveRequired = fmt.Errorf("draft: --by and --note are required outside a terminal")

// ResolveActorAndNote fills in actor/note via a huh.Form when either is
// empty and stdout is a TTY; non-interactive callers (scripts, CI) must
// pass both explicitly and get ErrInteractiveRequired otherwise.
func ResolveActorAndNote(actor, note string) (string, string, error) {
	if actor != "" && note != "" {
		return actor, note, nil
	}
	if !ui.IsTerminal() {
		return "", "", ErrInteractiveRequired
	}

	fields := []huh.Field{}
	if actor == "" {
		fields = append(fields, huh.NewInput().Title("Acting as").Value(&actor))
	}
	if note == "" {
		fields = append(fields, huh.NewText().Title("Note (optional)").Value(&note))
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return "", "", fmt.Errorf("draft: interactive prompt: %w", err)
	}
	return actor, note, nil
}
