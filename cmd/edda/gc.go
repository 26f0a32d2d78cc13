package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/blobstore"
	"github.com/untoldecay/edda/internal/hooks"
)

var (
	gcKeepDays        int
	gcArchiveKeepDays int
	gcQuotaMB         int
	gcArchive         bool
	gcPurgeArchive    bool
	gcIncludeSessions bool
	gcGlobal          bool
	gcForce           bool
	gcDryRun          bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim blob storage and stale session state",
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().IntVar(&gcKeepDays, "keep-days", 14, "never collect blobs newer than this many days")
	gcCmd.Flags().IntVar(&gcArchiveKeepDays, "archive-keep-days", 90, "purge archived blobs older than this many days")
	gcCmd.Flags().IntVar(&gcQuotaMB, "quota-mb", 0, "extend collection under a total-size quota (0 disables)")
	gcCmd.Flags().BoolVar(&gcArchive, "archive", false, "move collected blobs to the archive tier instead of deleting")
	gcCmd.Flags().BoolVar(&gcPurgeArchive, "purge-archive", false, "delete archived blobs past --archive-keep-days instead of running a normal pass")
	gcCmd.Flags().BoolVar(&gcIncludeSessions, "include-sessions", false, "also reclaim stale per-session state files")
	gcCmd.Flags().BoolVar(&gcGlobal, "global", false, "with --include-sessions, also consider coordination log compaction")
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "skip the confirmation prompt")
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "print the collection plan without touching any blob or state file")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	bs, err := blobstore.Open(ws.BlobsDir())
	if err != nil {
		return fmt.Errorf("edda: open blob store: %w", err)
	}

	opts := blobstore.Options{
		KeepDays:              gcKeepDays,
		QuotaMB:               gcQuotaMB,
		Archive:               gcArchive,
		ArchiveKeepDays:       gcArchiveKeepDays,
		PurgeArchive:          gcPurgeArchive,
		IncludeSessions:       gcIncludeSessions,
		Global:                gcGlobal,
		CoordinationLogPath:   ws.CoordinationLogPath(),
		StateDir:              ws.StateDir,
		CoordinationLineLimit: 1000,
	}

	if gcPurgeArchive {
		if gcDryRun {
			fmt.Println("--dry-run has no preview for --purge-archive; rerun without --dry-run to purge")
			return nil
		}
		tombstones, err := blobstore.PurgeArchive(bs, opts)
		if err != nil {
			return fmt.Errorf("edda: purge archive: %w", err)
		}
		return reportGC(ws, tombstones, 0)
	}

	store, err := ws.Store()
	if err != nil {
		return err
	}

	plan, err := blobstore.BuildPlan(context.Background(), store, bs, ws.Branch, opts)
	if err != nil {
		return fmt.Errorf("edda: build gc plan: %w", err)
	}
	if len(plan.Candidates) == 0 && len(plan.SessionFiles) == 0 && plan.CoordinationLine == 0 {
		fmt.Println("nothing to collect")
		return nil
	}

	if gcDryRun {
		if jsonOutput {
			return printJSON(plan)
		}
		fmt.Printf("would collect %d blob(s) reclaiming %d bytes, %d stale session file(s)\n",
			len(plan.Candidates), plan.ReclaimedBytes, len(plan.SessionFiles))
		return nil
	}

	if !gcForce {
		prompt := fmt.Sprintf("collect %d blob(s) reclaiming %d bytes, %d stale session file(s)?",
			len(plan.Candidates), plan.ReclaimedBytes, len(plan.SessionFiles))
		ok, err := blobstore.Confirm(prompt)
		if err != nil {
			return fmt.Errorf("edda: confirm gc plan: %w", err)
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	tombstones, err := blobstore.Execute(plan, bs, opts)
	if err != nil {
		return fmt.Errorf("edda: execute gc plan: %w", err)
	}
	return reportGC(ws, tombstones, plan.ReclaimedBytes)
}

func reportGC(ws *workspace, tombstones []blobstore.Tombstone, reclaimed int64) error {
	runLifecycleHook(ws, hooks.EventGC, fmt.Sprintf("collected %d blob(s)", len(tombstones)))

	if jsonOutput {
		return printJSON(map[string]interface{}{
			"collected": len(tombstones),
			"reclaimed_bytes": reclaimed,
			"tombstones": tombstones,
		})
	}
	fmt.Printf("collected %d blob(s), reclaimed %d bytes\n", len(tombstones), reclaimed)
	return nil
}
