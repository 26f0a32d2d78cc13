package digest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/edda/internal/ledger"
)

func setupWorkspace(t *testing.T) (*ledger.Store, string, Options) {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	opts := Options{
		LockPath:    filepath.Join(dir, "workspace.lock"),
		StateDir:    filepath.Join(dir, "state"),
		LockTimeout: time.Second,
	}
	return store, dir, opts
}

// writeSessionFiles lays out the two files DigestSession reads/removes: the
// transcript it extracts signals from, and the envelope ledger it deletes
// once the session has been accounted for.
func writeSessionFiles(t *testing.T, dir, sessionID, transcriptBody string) (transcriptPath, ledgerPath string) {
	t.Helper()
	transcriptPath = filepath.Join(dir, sessionID+".transcript.jsonl")
	if err := os.WriteFile(transcriptPath, []byte(transcriptBody), 0o644); err != nil {
		t.Fatal(err)
	}
	ledgerPath = filepath.Join(dir, sessionID+".ledger.jsonl")
	if err := os.WriteFile(ledgerPath, []byte(`{"hook_event_name":"SessionEnd"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return transcriptPath, ledgerPath
}

func TestDigestSessionSkipsEmptySession(t *testing.T) {
	store, dir, opts := setupWorkspace(t)
	transcriptPath, ledgerPath := writeSessionFiles(t, dir, "empty", "")

	result, err := DigestSession(context.Background(), store, transcriptPath, ledgerPath, "empty", "main", opts)
	if err != nil {
		t.Fatalf("DigestSession: %v", err)
	}
	if result != ResultSkippedEmpty {
		t.Fatalf("result = %v, want skipped_empty", result)
	}
	if _, err := os.Stat(ledgerPath); !os.IsNotExist(err) {
		t.Fatalf("expected session ledger to be deleted")
	}
}

func TestDigestSessionAppendsDigestEvent(t *testing.T) {
	store, dir, opts := setupWorkspace(t)
	body := `{"type":"assistant","timestamp":"2026-07-29T10:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"1","name":"Edit","input":{"file_path":"/src/lib.rs"}}]}}
{"type":"user","timestamp":"2026-07-29T10:00:01Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"1","content":"ok"}]}}
`
	transcriptPath, ledgerPath := writeSessionFiles(t, dir, "s1", body)

	result, err := DigestSession(context.Background(), store, transcriptPath, ledgerPath, "s1", "main", opts)
	if err != nil {
		t.Fatalf("DigestSession: %v", err)
	}
	if result != ResultDigested {
		t.Fatalf("result = %v, want digested", result)
	}

	events, err := store.IterEvents(context.Background(), "main")
	if err != nil {
		t.Fatalf("IterEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "note" {
		t.Fatalf("events = %+v, want one note event", events)
	}

	st, err := LoadState(opts.StateDir)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.SessionID != "s1" {
		t.Fatalf("state.SessionID = %q, want s1", st.SessionID)
	}
}

func TestDigestSessionIsIdempotentPerSession(t *testing.T) {
	store, dir, opts := setupWorkspace(t)
	body := `{"type":"assistant","timestamp":"2026-07-29T10:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"1","name":"Edit","input":{"file_path":"/src/lib.rs"}}]}}
`
	transcriptPath, ledgerPath := writeSessionFiles(t, dir, "s1", body)

	if _, err := DigestSession(context.Background(), store, transcriptPath, ledgerPath, "s1", "main", opts); err != nil {
		t.Fatalf("DigestSession (1st): %v", err)
	}

	// Ledger file was deleted, but the state records s1 as digested, so a
	// second call for the same session id must short-circuit before ever
	// trying to reopen the transcript.
	result, err := DigestSession(context.Background(), store, transcriptPath, ledgerPath, "s1", "main", opts)
	if err != nil {
		t.Fatalf("DigestSession (2nd): %v", err)
	}
	if result != ResultAlreadyDigested {
		t.Fatalf("result = %v, want already_digested", result)
	}
}

func TestDigestSessionTreatsMissingTranscriptAsEmpty(t *testing.T) {
	store, dir, opts := setupWorkspace(t)
	_, ledgerPath := writeSessionFiles(t, dir, "gone", "")
	missingTranscript := filepath.Join(dir, "never-ingested.jsonl")

	result, err := DigestSession(context.Background(), store, missingTranscript, ledgerPath, "gone", "main", opts)
	if err != nil {
		t.Fatalf("DigestSession: %v", err)
	}
	if result != ResultSkippedEmpty {
		t.Fatalf("result = %v, want skipped_empty", result)
	}
}
