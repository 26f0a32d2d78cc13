package coordination

import (
	"path/filepath"
	"testing"
	"time"
)

func TestTouchHeartbeatPreservesStartedAt(t *testing.T) {
	dir := t.TempDir()

	if err := TouchHeartbeat(dir, "s1", func(h *Heartbeat) { h.Label = "auth" }); err != nil {
		t.Fatalf("TouchHeartbeat (1st): %v", err)
	}
	first, err := readHeartbeat(HeartbeatPath(dir, "s1"))
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := TouchHeartbeat(dir, "s1", func(h *Heartbeat) { h.TotalEdits = 3 }); err != nil {
		t.Fatalf("TouchHeartbeat (2nd): %v", err)
	}
	second, err := readHeartbeat(HeartbeatPath(dir, "s1"))
	if err != nil {
		t.Fatal(err)
	}

	if !first.StartedAt.Equal(second.StartedAt) {
		t.Fatalf("StartedAt changed across touches: %v -> %v", first.StartedAt, second.StartedAt)
	}
	if !second.LastHeartbeat.After(first.LastHeartbeat) {
		t.Fatalf("LastHeartbeat did not advance")
	}
	if second.TotalEdits != 3 {
		t.Fatalf("TotalEdits = %d, want 3", second.TotalEdits)
	}
}

func TestDiscoverPeersExcludesSelfAndStale(t *testing.T) {
	dir := t.TempDir()

	if err := TouchHeartbeat(dir, "self", nil); err != nil {
		t.Fatal(err)
	}
	if err := TouchHeartbeat(dir, "fresh", func(h *Heartbeat) { h.Label = "billing" }); err != nil {
		t.Fatal(err)
	}
	// TouchHeartbeat always stamps LastHeartbeat to now, so the stale
	// heartbeat is written directly.
	if err := writeHeartbeatAtomic(HeartbeatPath(dir, "stale"), Heartbeat{SessionID: "stale", LastHeartbeat: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	peers, err := DiscoverPeers(dir, "self", 2*time.Minute)
	if err != nil {
		t.Fatalf("DiscoverPeers: %v", err)
	}
	if len(peers) != 1 || peers[0].SessionID != "fresh" {
		t.Fatalf("peers = %+v, want just 'fresh'", peers)
	}
}

func TestInferSessionRequiresExactlyOne(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	if _, err := InferSession(dir, time.Minute); err == nil {
		t.Fatal("expected error with no sessions present")
	}

	if err := TouchHeartbeat(dir, "only", nil); err != nil {
		t.Fatal(err)
	}
	got, err := InferSession(dir, time.Minute)
	if err != nil {
		t.Fatalf("InferSession: %v", err)
	}
	if got != "only" {
		t.Fatalf("InferSession = %q, want only", got)
	}

	if err := TouchHeartbeat(dir, "second", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := InferSession(dir, time.Minute); err == nil {
		t.Fatal("expected ambiguity error with two active sessions")
	}
}
