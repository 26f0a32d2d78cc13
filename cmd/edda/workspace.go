package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/untoldecay/edda/internal/ledger"
)

// workspace resolves the repo-local .edda directory plus the per-user
// store directory mirrored under it, and holds the lazily-opened ledger
// handle shared by a single command invocation.
type workspace struct {
	Root         string // absolute path containing .edda/
	EddaDir      string // Root/.edda
	ProjectID    string
	UserStoreDir string // ~/.edda/projects/<project_id>
	StateDir     string // UserStoreDir/state
	Branch       string
	store        *ledger.Store
}

// findWorkspaceRoot walks up from cwd looking for a .edda directory,
// mirroring the discovery order config.Initialize already uses for
// .edda/config.json.
func findWorkspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("edda: getwd: %w", err)
	}
	for dir := cwd; ; {
		if info, err := os.Stat(filepath.Join(dir, ".edda")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

// projectID derives a stable identifier for root from its absolute path,
// used to key the per-user store so multiple workspaces never collide.
func projectID(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:16]
}

func openWorkspace(branch string) (*workspace, error) {
	root, err := findWorkspaceRoot()
	if err != nil {
		return nil, err
	}
	eddaDir := filepath.Join(root, ".edda")
	if err := os.MkdirAll(eddaDir, 0o755); err != nil {
		return nil, fmt.Errorf("edda: mkdir %s: %w", eddaDir, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("edda: user home dir: %w", err)
	}
	pid := projectID(root)
	userStoreDir := filepath.Join(home, ".edda", "projects", pid)
	stateDir := filepath.Join(userStoreDir, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("edda: mkdir %s: %w", stateDir, err)
	}

	if branch == "" {
		branch = "main"
	}

	return &workspace{
		Root:         root,
		EddaDir:      eddaDir,
		ProjectID:    pid,
		UserStoreDir: userStoreDir,
		StateDir:     stateDir,
		Branch:       branch,
	}, nil
}

// Store lazily opens the workspace's ledger.db, reused for the rest of the
// command invocation.
func (w *workspace) Store() (*ledger.Store, error) {
	if w.store != nil {
		return w.store, nil
	}
	store, err := ledger.Open(filepath.Join(w.EddaDir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("edda: open ledger: %w", err)
	}
	w.store = store
	return store, nil
}

func (w *workspace) Close() {
	if w.store != nil {
		_ = w.store.Close()
	}
}

func (w *workspace) PolicyPath() string { return filepath.Join(w.EddaDir, "policy.yaml") }
func (w *workspace) ActorsPath() string { return filepath.Join(w.EddaDir, "actors.yaml") }
func (w *workspace) BlobsDir() string   { return w.EddaDir }

// ActivePlanPath is the coordination-tracked record of what each session
// is currently working on, consumed by contextpack's SessionStart render.
func (w *workspace) ActivePlanPath() string {
	return filepath.Join(w.StateDir, "active_tasks.json")
}

// LockPath is the workspace-wide digest/coordination lock used to
// serialize session-ledger digestion across concurrent sessions.
func (w *workspace) LockPath() string {
	return filepath.Join(w.EddaDir, "workspace.lock")
}

// CoordinationLogPath is the append-only claim/binding/request log shared
// by every session working in this workspace.
func (w *workspace) CoordinationLogPath() string {
	return filepath.Join(w.StateDir, "coordination.jsonl")
}
