package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/untoldecay/edda/internal/hooks"
)

var sinceParser *when.Parser

func init() {
	sinceParser = when.New(nil)
	sinceParser.Add(en.All...)
	sinceParser.Add(common.All...)
}

// parseSince accepts both natural-language ("3 days ago", "last monday")
// and RFC3339 timestamps for --since flags.
func parseSince(text string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	r, err := sinceParser.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not parse %q as a time", text)
	}
	return r.Time, nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("edda: marshal output: %w", err)
	}
	fmt.Println(string(b))
	return nil
}

// runLifecycleHook fires a workspace's .edda/hooks/on_* script for event,
// if one is present and executable. on_decide is fire-and-forget; other
// events run synchronously but never fail the command that triggered them.
func runLifecycleHook(ws *workspace, event, summary string) {
	runner := hooks.NewRunnerFromWorkspace(ws.Root)
	payload := hooks.Payload{Summary: summary}
	if event == hooks.EventDecide {
		runner.Run(event, payload)
		return
	}
	if err := runner.RunSync(event, payload); err != nil {
		fmt.Fprintf(os.Stderr, "edda: %s hook failed: %v\n", event, err)
	}
}
