package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/edda/internal/digest"
	"github.com/untoldecay/edda/internal/ledger"
)

func setupDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return Deps{
		Store:        store,
		Branch:       "main",
		ProjectID:    "proj1",
		UserStoreDir: filepath.Join(dir, "userstore"),
		StateDir:     filepath.Join(dir, "state"),
		DigestOptions: digest.Options{
			LockPath:    filepath.Join(dir, "workspace.lock"),
			StateDir:    filepath.Join(dir, "state"),
			LockTimeout: time.Second,
		},
	}
}

func hookPayload(t *testing.T, eventName, sessionID string) []byte {
	return hookPayloadWithTranscript(t, eventName, sessionID, "")
}

func hookPayloadWithTranscript(t *testing.T, eventName, sessionID, transcriptPath string) []byte {
	t.Helper()
	payload := map[string]string{
		"hook_event_name": eventName,
		"session_id":      sessionID,
		"cwd":             "/workspace",
	}
	if transcriptPath != "" {
		payload["transcript_path"] = transcriptPath
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDispatchSessionStartProducesWrappedOutput(t *testing.T) {
	deps := setupDeps(t)
	res := Dispatch(context.Background(), hookPayload(t, "SessionStart", "s1"), deps)

	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if len(res.Stdout) == 0 {
		t.Fatalf("expected non-empty stdout for SessionStart")
	}
	var decoded struct {
		HookSpecificOutput struct {
			HookEventName string `json:"hookEventName"`
		} `json:"hookSpecificOutput"`
	}
	if err := json.Unmarshal(res.Stdout, &decoded); err != nil {
		t.Fatalf("unmarshal stdout: %v", err)
	}
	if decoded.HookSpecificOutput.HookEventName != "SessionStart" {
		t.Fatalf("hookEventName = %q", decoded.HookSpecificOutput.HookEventName)
	}
}

func TestDispatchUnknownEventPassesThroughSilently(t *testing.T) {
	deps := setupDeps(t)
	res := Dispatch(context.Background(), hookPayload(t, "PreToolUse", "s1"), deps)
	if res.ExitCode != 0 || len(res.Stdout) != 0 {
		t.Fatalf("res = %+v, want silent pass-through", res)
	}
}

func TestDispatchSessionEndWarnsOnPendingTasks(t *testing.T) {
	deps := setupDeps(t)

	// The host's own transcript file, wherever it happens to live; Dispatch
	// is responsible for mirroring it into the per-user store.
	hostTranscript := filepath.Join(t.TempDir(), "host-transcript.jsonl")
	transcript := `{"type":"assistant","timestamp":"2026-07-29T10:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"1","name":"TaskCreate","input":{"subject":"write tests"}}]}}
`
	if err := os.WriteFile(hostTranscript, []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}

	res := Dispatch(context.Background(), hookPayloadWithTranscript(t, "SessionEnd", "s1", hostTranscript), deps)
	if res.ExitCode != 1 {
		t.Fatalf("ExitCode = %d, want 1", res.ExitCode)
	}
	if !strings.Contains(res.Warning, "write tests") {
		t.Fatalf("Warning = %q, want mention of pending task", res.Warning)
	}

	ingested := TranscriptPath(deps.UserStoreDir, deps.ProjectID, "s1")
	if _, err := os.Stat(ingested); err != nil {
		t.Fatalf("expected transcript to be ingested at %s: %v", ingested, err)
	}
}
