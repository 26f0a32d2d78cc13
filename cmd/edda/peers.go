package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/coordination"
)

var (
	peersSelf       string
	peersStaleAfter time.Duration
	peersWatch      bool
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List other sessions active in this workspace",
	RunE:  runPeers,
}

func init() {
	peersCmd.Flags().StringVar(&peersSelf, "self", "", "exclude this session ID from the listing")
	peersCmd.Flags().DurationVar(&peersStaleAfter, "stale-after", 10*time.Minute, "treat a heartbeat older than this as gone")
	peersCmd.Flags().BoolVar(&peersWatch, "watch", false, "live-tail the coordination board until interrupted")
	rootCmd.AddCommand(peersCmd)
}

func runPeers(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	if peersWatch {
		return watchPeers(ws)
	}

	peers, err := coordination.DiscoverPeers(ws.StateDir, peersSelf, peersStaleAfter)
	if err != nil {
		return fmt.Errorf("edda: discover peers: %w", err)
	}
	return printPeers(peers)
}

func printPeers(peers []coordination.Peer) error {
	if jsonOutput {
		return printJSON(peers)
	}
	if len(peers) == 0 {
		fmt.Println("no other active sessions")
		return nil
	}
	for _, p := range peers {
		label := p.Label
		if label == "" {
			label = p.SessionID
		}
		fmt.Printf("%-20s %-10s last seen %s ago\n", label, p.CurrentPhase, p.Age.Round(time.Second))
	}
	return nil
}

// watchPeers live-tails the coordination board, reprinting the binding and
// claim state every time the log changes, until interrupted.
func watchPeers(ws *workspace) error {
	log := coordination.Open(ws.CoordinationLogPath())
	watcher, err := coordination.NewWatcher(log, ws.StateDir)
	if err != nil {
		return fmt.Errorf("edda: watch coordination board: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return watcher.Run(ctx, func(state coordination.BoardState) {
		if jsonOutput {
			_ = printJSON(state)
			return
		}
		fmt.Printf("--- %d claim(s), %d binding(s) ---\n", len(state.Claims), len(state.Bindings))
		for _, c := range state.Claims {
			fmt.Printf("claim  %-20s %v\n", c.Label, c.Paths)
		}
		for _, b := range state.Bindings {
			fmt.Printf("bind   %-20s = %s (%s)\n", b.Key, b.Value, b.ByLabel)
		}
	})
}
