package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/edda/internal/ledger"
)

func setupStore(t *testing.T) (*Store, *ledger.Store) {
	t.Helper()
	dir := t.TempDir()
	bs, err := Open(filepath.Join(dir, ".edda"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return bs, store
}

func ageBlob(t *testing.T, bs *Store, hash string, age time.Duration) {
	t.Helper()
	path := filepath.Join(bs.activeDir(), hexOf(hash))
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

func TestPutIsIdempotentAndGetResolves(t *testing.T) {
	bs, _ := setupStore(t)

	h1, err := bs.Put([]byte("hello"), ClassNoise)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	h2, err := bs.Put([]byte("hello"), ClassNoise)
	if err != nil {
		t.Fatalf("Put (again): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}

	got, err := bs.Get(h1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestBuildPlanSkipsReferencedPinnedArtifactAndRecentBlobs(t *testing.T) {
	bs, store := setupStore(t)
	ctx := context.Background()

	referencedHash, _ := bs.Put([]byte("referenced"), ClassNoise)
	ageBlob(t, bs, referencedHash, 60*24*time.Hour)

	pinnedHash, _ := bs.Put([]byte("pinned"), ClassNoise)
	_ = bs.SetMeta(pinnedHash, Meta{Class: ClassNoise, Pinned: true})
	ageBlob(t, bs, pinnedHash, 60*24*time.Hour)

	artifactHash, _ := bs.Put([]byte("artifact"), ClassArtifact)
	ageBlob(t, bs, artifactHash, 60*24*time.Hour)

	recentHash, _ := bs.Put([]byte("recent"), ClassNoise)

	staleHash, _ := bs.Put([]byte("stale noise"), ClassNoise)
	ageBlob(t, bs, staleHash, 60*24*time.Hour)

	if _, err := store.AppendEvent(ctx, ledger.Event{
		EventType: "note", Branch: "main",
		Refs: ledger.Refs{Blobs: []string{referencedHash}},
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	plan, err := BuildPlan(ctx, store, bs, "main", Options{KeepDays: 30})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	var gotHashes []string
	for _, c := range plan.Candidates {
		gotHashes = append(gotHashes, c.Hash)
	}
	if len(gotHashes) != 1 || gotHashes[0] != staleHash {
		t.Fatalf("candidates = %v, want only %s", gotHashes, staleHash)
	}
	_ = recentHash
}

func TestBuildPlanOrdersNoiseBeforeEvidence(t *testing.T) {
	bs, store := setupStore(t)
	ctx := context.Background()

	evidenceHash, _ := bs.Put([]byte("evidence"), ClassEvidence)
	ageBlob(t, bs, evidenceHash, 60*24*time.Hour)

	noiseHash, _ := bs.Put([]byte("noise"), ClassNoise)
	ageBlob(t, bs, noiseHash, 60*24*time.Hour)

	plan, err := BuildPlan(ctx, store, bs, "main", Options{KeepDays: 30})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Candidates) != 2 {
		t.Fatalf("candidates = %v, want 2", plan.Candidates)
	}
	if plan.Candidates[0].Hash != noiseHash {
		t.Fatalf("first candidate = %s, want noise %s first", plan.Candidates[0].Hash, noiseHash)
	}
}

func TestExecuteDeletesAndWritesTombstones(t *testing.T) {
	bs, store := setupStore(t)
	ctx := context.Background()

	staleHash, _ := bs.Put([]byte("stale"), ClassNoise)
	ageBlob(t, bs, staleHash, 60*24*time.Hour)

	stateDir := filepath.Join(t.TempDir(), "state")
	plan, err := BuildPlan(ctx, store, bs, "main", Options{KeepDays: 30, StateDir: stateDir})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	tombstones, err := Execute(plan, bs, Options{StateDir: stateDir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tombstones) != 1 || tombstones[0].BlobHash != staleHash {
		t.Fatalf("tombstones = %+v", tombstones)
	}

	if _, err := bs.Get(staleHash); err == nil {
		t.Fatalf("expected blob to be gone after Execute")
	}

	if _, err := os.Stat(tombstonePath(stateDir)); err != nil {
		t.Fatalf("tombstone log not written: %v", err)
	}
}
