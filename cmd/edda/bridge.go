package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/bridge"
	"github.com/untoldecay/edda/internal/config"
	"github.com/untoldecay/edda/internal/digest"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Claude Code hook bridge",
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

var bridgeHookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Read one hook payload from stdin and dispatch it",
	RunE:  runBridgeHook,
}

func init() {
	bridgeCmd.AddCommand(bridgeHookCmd)
}

func runBridgeHook(cmd *cobra.Command, args []string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("edda: read hook payload: %w", err)
	}

	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	deps := bridge.Deps{
		Store:          store,
		Branch:         ws.Branch,
		ProjectID:      ws.ProjectID,
		UserStoreDir:   ws.UserStoreDir,
		StateDir:       ws.StateDir,
		ActivePlanPath: ws.ActivePlanPath(),
		DigestOptions: digest.Options{
			LockPath:         ws.LockPath(),
			StateDir:         ws.StateDir,
			LockTimeout:      time.Duration(config.GetInt("bridge.lock-timeout-ms")) * time.Millisecond,
			DigestFailedCmds: config.GetBool("bridge.digest-failed-cmds"),
		},
	}

	res := bridge.Dispatch(context.Background(), raw, deps)
	if len(res.Stdout) > 0 {
		os.Stdout.Write(res.Stdout)
		fmt.Println()
	}
	if res.Warning != "" {
		fmt.Fprintln(os.Stderr, res.Warning)
	}
	os.Exit(res.ExitCode)
	return nil
}

var digestSessionID string

var bridgeDigestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Manually digest a session ledger that the hook bridge hasn't processed yet",
	RunE:  runBridgeDigest,
}

func init() {
	bridgeDigestCmd.Flags().StringVar(&digestSessionID, "session", "", "session ID to digest")
	_ = bridgeDigestCmd.MarkFlagRequired("session")
	bridgeCmd.AddCommand(bridgeDigestCmd)
}

func runBridgeDigest(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()
	store, err := ws.Store()
	if err != nil {
		return err
	}

	ledgerPath := bridge.SessionLedgerPath(ws.UserStoreDir, ws.ProjectID, digestSessionID)
	transcriptPath := bridge.TranscriptPath(ws.UserStoreDir, ws.ProjectID, digestSessionID)
	result, err := digest.DigestSession(context.Background(), store, transcriptPath, ledgerPath, digestSessionID, ws.Branch, digest.Options{
		LockPath:         ws.LockPath(),
		StateDir:         ws.StateDir,
		LockTimeout:      time.Duration(config.GetInt("bridge.lock-timeout-ms")) * time.Millisecond,
		DigestFailedCmds: config.GetBool("bridge.digest-failed-cmds"),
	})
	if err != nil {
		return fmt.Errorf("edda: digest session: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]string{"session": digestSessionID, "result": string(result)})
	}
	fmt.Printf("session %s: %s\n", digestSessionID, result)
	return nil
}
