package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/untoldecay/edda/internal/signals"
)

// PrevDigestSnapshot is what SessionEnd leaves behind for the next
// session's SessionStart to greet the user with a one-liner. Older
// snapshots lacking newer fields deserialize with their zero values, so
// this type must never gain a required field.
type PrevDigestSnapshot struct {
	SessionID    string          `json:"session_id"`
	EndedAt      time.Time       `json:"ended_at"`
	Outcome      signals.Outcome `json:"outcome"`
	Summary      string          `json:"summary"`
	FilesChanged int             `json:"files_changed"`
	CommitCount  int             `json:"commit_count"`
}

func snapshotPath(stateDir string) string {
	return filepath.Join(stateDir, "prev_digest.json")
}

// WritePrevDigestSnapshot persists the current session's summary for the
// next SessionStart to read.
func WritePrevDigestSnapshot(stateDir, sessionID string, stats signals.SessionStats) error {
	snap := PrevDigestSnapshot{
		SessionID:    sessionID,
		EndedAt:      time.Now().UTC(),
		Outcome:      stats.Outcome,
		Summary:      RenderDigestText(sessionID, stats),
		FilesChanged: len(stats.FilesModified),
		CommitCount:  len(stats.Commits),
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("digest: mkdir state dir: %w", err)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("digest: marshal snapshot: %w", err)
	}
	tmp := snapshotPath(stateDir) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("digest: write snapshot tmp: %w", err)
	}
	return os.Rename(tmp, snapshotPath(stateDir))
}

// ReadPrevDigestSnapshot loads the snapshot left by the previous session,
// if any.
func ReadPrevDigestSnapshot(stateDir string) (*PrevDigestSnapshot, error) {
	b, err := os.ReadFile(snapshotPath(stateDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("digest: read snapshot: %w", err)
	}
	var snap PrevDigestSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("digest: parse snapshot: %w", err)
	}
	return &snap, nil
}
