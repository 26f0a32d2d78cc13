package bridge

import (
	"path/filepath"
	"testing"
)

func TestClassifySignal(t *testing.T) {
	cases := []struct {
		tool, cmd string
		want      SignalKind
	}{
		{"Bash", "edda decide db.engine sqlite", SignalSelfRecord},
		{"Bash", "git commit -m 'fix'", SignalCommit},
		{"Bash", "npm install lodash", SignalDependencyAdd},
		{"Bash", "ls -la", SignalNone},
		{"Edit", "git commit -m 'fix'", SignalNone},
	}
	for _, c := range cases {
		got, _ := ClassifySignal(c.tool, c.cmd)
		if got != c.want {
			t.Errorf("ClassifySignal(%q, %q) = %q, want %q", c.tool, c.cmd, got, c.want)
		}
	}
}

func TestNudgeSelfRecordNeverCooldowns(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")

	for i := 0; i < 3; i++ {
		hint, err := Nudge(stateDir, "s1", SignalSelfRecord, "edda decide x y")
		if err != nil {
			t.Fatalf("Nudge: %v", err)
		}
		if hint != "" {
			t.Fatalf("self-record must never nudge, got %q", hint)
		}
	}

	st := loadNudgeState(stateDir, "s1")
	if st.DecideCount != 3 {
		t.Fatalf("DecideCount = %d, want 3", st.DecideCount)
	}
}

func TestNudgeCooldownSuppressesRepeats(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")

	hint1, err := Nudge(stateDir, "s1", SignalCommit, "git commit -m x")
	if err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	if hint1 == "" {
		t.Fatalf("expected first signal to nudge")
	}

	hint2, err := Nudge(stateDir, "s1", SignalCommit, "git commit -m y")
	if err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	if hint2 != "" {
		t.Fatalf("expected cooldown to suppress second nudge, got %q", hint2)
	}

	st := loadNudgeState(stateDir, "s1")
	if st.SignalCount != 2 {
		t.Fatalf("SignalCount = %d, want 2", st.SignalCount)
	}
	if st.NudgeCount != 1 {
		t.Fatalf("NudgeCount = %d, want 1", st.NudgeCount)
	}
}
