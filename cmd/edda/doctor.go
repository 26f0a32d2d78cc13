package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/untoldecay/edda/internal/draft"
	"github.com/untoldecay/edda/internal/ledger"
)

// DoctorStatus is the severity of a single doctor check.
type DoctorStatus string

const (
	StatusOK      DoctorStatus = "ok"
	StatusWarning DoctorStatus = "warning"
	StatusError   DoctorStatus = "error"
)

// DoctorCheck is one diagnostic result: what it found, and how to fix it
// if it didn't pass.
type DoctorCheck struct {
	Name    string       `json:"name"`
	Status  DoctorStatus `json:"status"`
	Message string       `json:"message"`
	Fix     string       `json:"fix,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the workspace's edda installation for common problems",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer ws.Close()

	checks := []DoctorCheck{
		checkEddaDir(ws),
		checkLedger(ws),
		checkSchemaVersion(ws),
		checkPolicy(ws),
		checkActors(ws),
		checkUserStore(ws),
		checkHooks(ws),
	}

	if jsonOutput {
		return printJSON(checks)
	}

	var worst DoctorStatus = StatusOK
	for _, c := range checks {
		fmt.Printf("[%s] %-20s %s\n", statusGlyph(c.Status), c.Name, c.Message)
		if c.Fix != "" {
			fmt.Printf("       fix: %s\n", c.Fix)
		}
		if c.Status == StatusError {
			worst = StatusError
		} else if c.Status == StatusWarning && worst != StatusError {
			worst = StatusWarning
		}
	}
	if worst == StatusError {
		return fmt.Errorf("edda: doctor found unresolved errors")
	}
	return nil
}

func statusGlyph(s DoctorStatus) string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warn"
	default:
		return "FAIL"
	}
}

func checkEddaDir(ws *workspace) DoctorCheck {
	if info, err := os.Stat(ws.EddaDir); err == nil && info.IsDir() {
		return DoctorCheck{Name: "workspace", Status: StatusOK, Message: ws.EddaDir + " present"}
	}
	return DoctorCheck{
		Name:    "workspace",
		Status:  StatusError,
		Message: "no .edda directory found",
		Fix:     "run any edda command once to create it, or mkdir .edda",
	}
}

func checkLedger(ws *workspace) DoctorCheck {
	store, err := ws.Store()
	if err != nil {
		return DoctorCheck{Name: "ledger", Status: StatusError, Message: err.Error()}
	}
	head, err := store.LastEventHash(context.Background())
	if err != nil {
		return DoctorCheck{Name: "ledger", Status: StatusWarning, Message: "ledger open but head unreadable: " + err.Error()}
	}
	if head == "" {
		return DoctorCheck{Name: "ledger", Status: StatusOK, Message: "empty ledger, no events yet"}
	}
	return DoctorCheck{Name: "ledger", Status: StatusOK, Message: "head at " + head[:min(12, len(head))]}
}

// checkSchemaVersion compares the ledger's on-disk schema version against
// the one this binary was built against, using semver so a future schema
// bump can carry real major/minor meaning instead of a bare integer.
func checkSchemaVersion(ws *workspace) DoctorCheck {
	if !semver.IsValid(Version) {
		return DoctorCheck{Name: "schema", Status: StatusWarning, Message: "edda binary version " + Version + " is not valid semver"}
	}

	store, err := ws.Store()
	if err != nil {
		return DoctorCheck{Name: "schema", Status: StatusError, Message: err.Error()}
	}
	persisted, err := store.PersistedSchemaVersion(context.Background())
	if err != nil {
		return DoctorCheck{Name: "schema", Status: StatusWarning, Message: "schema version unreadable: " + err.Error()}
	}

	compiled := fmt.Sprintf("v%d.0.0", ledger.SchemaVersion)
	onDisk := fmt.Sprintf("v%d.0.0", persisted)

	switch semver.Compare(onDisk, compiled) {
	case 0:
		return DoctorCheck{Name: "schema", Status: StatusOK, Message: fmt.Sprintf("ledger schema %d matches this build", persisted)}
	case 1:
		return DoctorCheck{
			Name:    "schema",
			Status:  StatusError,
			Message: fmt.Sprintf("ledger schema %d is newer than this build's %d", persisted, ledger.SchemaVersion),
			Fix:     "upgrade edda to a version that knows this schema",
		}
	default:
		return DoctorCheck{
			Name:    "schema",
			Status:  StatusWarning,
			Message: fmt.Sprintf("ledger schema %d predates this build's %d, migration pending", persisted, ledger.SchemaVersion),
			Fix:     "open the ledger once with this build to migrate it",
		}
	}
}

func checkPolicy(ws *workspace) DoctorCheck {
	if _, err := draft.LoadPolicy(ws.PolicyPath()); err != nil {
		return DoctorCheck{
			Name:    "policy",
			Status:  StatusWarning,
			Message: "policy.yaml invalid: " + err.Error(),
			Fix:     "fix or remove " + ws.PolicyPath(),
		}
	}
	if _, err := os.Stat(ws.PolicyPath()); os.IsNotExist(err) {
		return DoctorCheck{Name: "policy", Status: StatusOK, Message: "no policy.yaml, drafts require no approval"}
	}
	return DoctorCheck{Name: "policy", Status: StatusOK, Message: "policy.yaml valid"}
}

// checkActors and checkPolicy both tolerate a missing file: an
// unconfigured actors/policy table just means drafts skip that gate.

func checkActors(ws *workspace) DoctorCheck {
	if _, err := draft.LoadActors(ws.ActorsPath()); err != nil {
		return DoctorCheck{
			Name:    "actors",
			Status:  StatusWarning,
			Message: "actors.yaml invalid: " + err.Error(),
			Fix:     "fix or remove " + ws.ActorsPath(),
		}
	}
	return DoctorCheck{Name: "actors", Status: StatusOK, Message: "actors table readable"}
}

func checkUserStore(ws *workspace) DoctorCheck {
	if info, err := os.Stat(ws.UserStoreDir); err == nil && info.IsDir() {
		return DoctorCheck{Name: "user-store", Status: StatusOK, Message: ws.UserStoreDir}
	}
	return DoctorCheck{
		Name:    "user-store",
		Status:  StatusWarning,
		Message: "per-user store not created yet",
		Fix:     "run a bridge hook once to create " + ws.UserStoreDir,
	}
}

func checkHooks(ws *workspace) DoctorCheck {
	hooksDir := filepath.Join(ws.EddaDir, "hooks")
	entries, err := os.ReadDir(hooksDir)
	if err != nil {
		return DoctorCheck{Name: "hooks", Status: StatusOK, Message: "no hooks configured"}
	}
	return DoctorCheck{Name: "hooks", Status: StatusOK, Message: fmt.Sprintf("%d file(s) in %s", len(entries), hooksDir)}
}
