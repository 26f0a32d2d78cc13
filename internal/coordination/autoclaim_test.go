package coordination

import (
	"path/filepath"
	"testing"
)

func TestDeriveScopePrefersCratesGroup(t *testing.T) {
	label, paths, ok := DeriveScope([]string{
		"crates/edda-ledger/src/store.rs",
		"crates/edda-ledger/src/event.rs",
		"crates/edda-cli/src/main.rs",
	})
	if !ok {
		t.Fatal("expected a derived scope")
	}
	if label != "edda-ledger" {
		t.Fatalf("label = %q, want edda-ledger", label)
	}
	if len(paths) != 1 || paths[0] != "crates/edda-ledger/*" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestDeriveScopeFallsBackToSrcModule(t *testing.T) {
	label, paths, ok := DeriveScope([]string{"src/auth/login.go", "src/auth/session.go"})
	if !ok {
		t.Fatal("expected a derived scope")
	}
	if label != "auth" {
		t.Fatalf("label = %q, want auth", label)
	}
	if paths[0] != "src/auth/*" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestMaybeAutoClaimIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	log := Open(filepath.Join(dir, "coordination.jsonl"))
	stateDir := filepath.Join(dir, "state")

	edited := []string{"crates/edda-ledger/src/store.rs"}
	if err := MaybeAutoClaim(log, stateDir, "s1", edited); err != nil {
		t.Fatalf("MaybeAutoClaim (1st): %v", err)
	}
	if err := MaybeAutoClaim(log, stateDir, "s1", edited); err != nil {
		t.Fatalf("MaybeAutoClaim (2nd): %v", err)
	}

	count, err := log.LineCount()
	if err != nil {
		t.Fatalf("LineCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one claim event, got %d lines", count)
	}
}

func TestMaybeAutoClaimNeverOverwritesManualClaim(t *testing.T) {
	dir := t.TempDir()
	log := Open(filepath.Join(dir, "coordination.jsonl"))
	stateDir := filepath.Join(dir, "state")

	if err := log.WriteClaim("s1", "custom-scope", []string{"anywhere/*"}); err != nil {
		t.Fatal(err)
	}

	if err := MaybeAutoClaim(log, stateDir, "s1", []string{"crates/edda-ledger/src/store.rs"}); err != nil {
		t.Fatalf("MaybeAutoClaim: %v", err)
	}

	state, err := log.DeriveBoardState()
	if err != nil {
		t.Fatal(err)
	}
	if state.Claims["s1"].Label != "custom-scope" {
		t.Fatalf("manual claim was overwritten: %+v", state.Claims["s1"])
	}
}
