package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeDefaults(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := GetInt("peer.stale-secs"); got != 120 {
		t.Fatalf("peer.stale-secs default = %d, want 120", got)
	}
	if got := GetBool("bridge.auto-digest"); !got {
		t.Fatalf("bridge.auto-digest default = false, want true")
	}
}

func TestProjectConfigOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	eddaDir := filepath.Join(dir, ".edda")
	if err := os.MkdirAll(eddaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(map[string]interface{}{"peer": map[string]interface{}{"stale-secs": 42}})
	if err := os.WriteFile(filepath.Join(eddaDir, "config.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := GetInt("peer.stale-secs"); got != 42 {
		t.Fatalf("peer.stale-secs = %d, want 42 from project config", got)
	}
	if src := GetValueSource("peer.stale-secs"); src != SourceConfigFile {
		t.Fatalf("source = %s, want config_file", src)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	eddaDir := filepath.Join(dir, ".edda")
	if err := os.MkdirAll(eddaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(map[string]interface{}{"peer": map[string]interface{}{"stale-secs": 42}})
	if err := os.WriteFile(filepath.Join(eddaDir, "config.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EDDA_PEER_STALE_SECS", "7")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := GetInt("peer.stale-secs"); got != 7 {
		t.Fatalf("peer.stale-secs = %d, want 7 from env", got)
	}
	if src := GetValueSource("peer.stale-secs"); src != SourceEnvVar {
		t.Fatalf("source = %s, want env_var", src)
	}
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	return func() { _ = os.Chdir(old) }
}
