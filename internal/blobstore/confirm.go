package blobstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/untoldecay/edda/internal/ui"
)

// Confirm asks the operator to approve a GC plan described by prompt. On a
// TTY it renders a huh.Confirm dialog; otherwise it falls back to reading
// a y/N line from stdin, mirroring the teacher's TTY-detection idiom.
func Confirm(prompt string) (bool, error) {
	if !ui.IsTerminal() {
		return confirmFromStdin(prompt)
	}

	ok := false
	err := huh.NewConfirm().
		Title(prompt).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("blobstore: confirm prompt: %w", err)
	}
	return ok, nil
}

func confirmFromStdin(prompt string) (bool, error) {
	fmt.Fprintf(os.Stdout, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
