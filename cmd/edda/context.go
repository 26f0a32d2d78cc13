package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/contextpack"
	"github.com/untoldecay/edda/internal/ui"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect the context pack a session would receive",
}

func init() {
	rootCmd.AddCommand(contextCmd)
}

var (
	contextSessionID string
	contextRender    bool
	contextDepth     int
)

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the SessionStart briefing edda would inject right now",
	RunE:  runContextShow,
}

func init() {
	contextShowCmd.Flags().StringVar(&contextSessionID, "session", "", "session ID to render the briefing for")
	contextShowCmd.Flags().BoolVar(&contextRender, "render", false, "glamour-render the markdown body instead of printing it raw")
	contextShowCmd.Flags().IntVar(&contextDepth, "depth", 0, "character budget for the rendered body (0 uses the hook default)")
	contextCmd.AddCommand(contextShowCmd)
}

func runContextShow(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	body, err := contextpack.BuildSessionStart(context.Background(), contextpack.SessionStartInputs{
		Store:          store,
		Branch:         ws.Branch,
		SessionID:      contextSessionID,
		StateDir:       ws.StateDir,
		ActivePlanPath: ws.ActivePlanPath(),
		Budget:         contextDepth,
	})
	if err != nil {
		return fmt.Errorf("edda: build context pack: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]string{"body": body})
	}
	if body == "" {
		fmt.Println("(empty context pack)")
		return nil
	}
	if contextRender {
		fmt.Println(renderMarkdown(body))
		return nil
	}
	fmt.Println(body)
	return nil
}

// renderMarkdown glamour-renders body for a color terminal; a dumb
// terminal or pipe gets the raw markdown back unchanged.
func renderMarkdown(body string) string {
	if !ui.IsTerminal() {
		return body
	}
	out, err := glamour.Render(body, "dark")
	if err != nil {
		return body
	}
	return out
}
