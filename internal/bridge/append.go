package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SessionLedgerPath returns the per-session envelope ledger file under a
// project's per-user store.
func SessionLedgerPath(userStoreDir, projectID, sessionID string) string {
	return filepath.Join(userStoreDir, "projects", projectID, "ledger", sessionID+".jsonl")
}

// AppendEnvelope appends one redacted envelope line to the session's
// ledger file, creating parent directories as needed.
func AppendEnvelope(path string, env Envelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("bridge: mkdir session ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bridge: open session ledger: %w", err)
	}
	defer f.Close()

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bridge: marshal envelope: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("bridge: write envelope: %w", err)
	}
	return nil
}
