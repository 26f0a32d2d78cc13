package bridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TranscriptPath returns the per-session copy of the host's raw transcript
// file under a project's per-user store. This, not the envelope ledger, is
// what signals.Extract reads: the envelope only records hook metadata, the
// transcript carries the actual assistant/user tool-use stream.
func TranscriptPath(userStoreDir, projectID, sessionID string) string {
	return filepath.Join(userStoreDir, "projects", projectID, "transcripts", sessionID+".jsonl")
}

// IngestTranscript mirrors the host's current transcript file into dest,
// overwriting any prior copy. The host path already accumulates the whole
// conversation so far, so each hook call re-syncs the full file rather than
// appending to it. A missing or unreadable source is not an error: some
// hook events never carry a transcript_path worth copying.
func IngestTranscript(hostPath, dest string) error {
	if hostPath == "" {
		return nil
	}
	src, err := os.Open(hostPath)
	if err != nil {
		return nil
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("bridge: mkdir transcript dir: %w", err)
	}
	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bridge: open transcript copy: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("bridge: copy transcript: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("bridge: close transcript copy: %w", err)
	}
	return os.Rename(tmp, dest)
}
