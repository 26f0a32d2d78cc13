package signals

import (
	"strings"
	"testing"
)

func transcriptLine(t *testing.T, v interface{}) string {
	t.Helper()
	return toJSON(t, v) + "\n"
}

func TestExtractCommitsAndFiles(t *testing.T) {
	var b strings.Builder
	b.WriteString(transcriptLine(t, map[string]interface{}{
		"type": "assistant", "timestamp": "2026-07-29T10:00:00Z",
		"message": map[string]interface{}{"role": "assistant", "content": []interface{}{
			map[string]interface{}{"type": "tool_use", "id": "1", "name": "Edit", "input": map[string]interface{}{"file_path": "/src/lib.rs"}},
		}},
	}))
	b.WriteString(transcriptLine(t, map[string]interface{}{
		"type": "user", "timestamp": "2026-07-29T10:00:01Z",
		"message": map[string]interface{}{"role": "user", "content": []interface{}{
			map[string]interface{}{"type": "tool_result", "tool_use_id": "1", "content": "ok"},
		}},
	}))
	b.WriteString(transcriptLine(t, map[string]interface{}{
		"type": "assistant", "timestamp": "2026-07-29T10:00:02Z",
		"message": map[string]interface{}{"role": "assistant", "content": []interface{}{
			map[string]interface{}{"type": "tool_use", "id": "2", "name": "Bash", "input": map[string]interface{}{"command": `git commit -m "fix: X"`}},
		}},
	}))
	b.WriteString(transcriptLine(t, map[string]interface{}{
		"type": "user", "timestamp": "2026-07-29T10:00:03Z",
		"message": map[string]interface{}{"role": "user", "content": []interface{}{
			map[string]interface{}{"type": "tool_result", "tool_use_id": "2", "content": "[main abc1234] fix: X"},
		}},
	}))
	b.WriteString(transcriptLine(t, map[string]interface{}{
		"type": "user", "timestamp": "2026-07-29T10:00:04Z",
		"message": map[string]interface{}{"role": "user", "content": []interface{}{}},
	}))

	stats, err := Extract(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if stats.ToolCalls != 2 {
		t.Fatalf("ToolCalls = %d, want 2", stats.ToolCalls)
	}
	if stats.FilesModified["/src/lib.rs"] != 1 {
		t.Fatalf("FilesModified = %v", stats.FilesModified)
	}
	if len(stats.Commits) != 1 || stats.Commits[0].Hash != "abc1234" || stats.Commits[0].Message != "fix: X" {
		t.Fatalf("Commits = %+v", stats.Commits)
	}
	if stats.UserPrompts != 1 {
		t.Fatalf("UserPrompts = %d, want 1", stats.UserPrompts)
	}
	if stats.Outcome != OutcomeInterrupt {
		t.Fatalf("Outcome = %v, want Interrupted (last line is a bare user prompt)", stats.Outcome)
	}
}

func TestExtractHealingRemovesStaleFailure(t *testing.T) {
	var b strings.Builder
	step := func(id, cmd string) {
		b.WriteString(transcriptLine(t, map[string]interface{}{
			"type": "assistant", "timestamp": "2026-07-29T10:00:00Z",
			"message": map[string]interface{}{"role": "assistant", "content": []interface{}{
				map[string]interface{}{"type": "tool_use", "id": id, "name": "Bash", "input": map[string]interface{}{"command": cmd}},
			}},
		}))
	}
	result := func(id, content string, isError bool) {
		b.WriteString(transcriptLine(t, map[string]interface{}{
			"type": "user", "timestamp": "2026-07-29T10:00:00Z",
			"message": map[string]interface{}{"role": "user", "content": []interface{}{
				map[string]interface{}{"type": "tool_result", "tool_use_id": id, "content": content, "is_error": isError},
			}},
		}))
	}

	step("1", "cargo clippy")
	result("1", "error: unused variable `x`\n --> src/main.rs:3", true)
	step("2", "cargo clippy")
	result("2", "ok", false)
	step("3", "cargo clippy")
	result("3", "error: unused variable `y`\n --> src/main.rs:9", true)

	stats, err := Extract(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(stats.FailedCmds) != 1 {
		t.Fatalf("FailedCmds = %+v, want exactly 1 (healed then re-failed)", stats.FailedCmds)
	}
	if stats.FailedCmds[0].Base != "cargo clippy" {
		t.Fatalf("Base = %q", stats.FailedCmds[0].Base)
	}
	if !strings.Contains(stats.FailedCmds[0].Snippet, "unused variable `y`") {
		t.Fatalf("Snippet = %q, want latest failure retained", stats.FailedCmds[0].Snippet)
	}
}

func TestExtractErrorStuckOutcome(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		b.WriteString(transcriptLine(t, map[string]interface{}{
			"type": "assistant", "timestamp": "2026-07-29T10:00:00Z",
			"message": map[string]interface{}{"role": "assistant", "content": []interface{}{
				map[string]interface{}{"type": "tool_use", "id": id, "name": "Bash", "input": map[string]interface{}{"command": "go test ./..."}},
			}},
		}))
		b.WriteString(transcriptLine(t, map[string]interface{}{
			"type": "user", "timestamp": "2026-07-29T10:00:00Z",
			"message": map[string]interface{}{"role": "user", "content": []interface{}{
				map[string]interface{}{"type": "tool_result", "tool_use_id": id, "content": "FAIL: panic", "is_error": true},
			}},
		}))
	}

	stats, err := Extract(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if stats.Outcome != OutcomeErrorStuck {
		t.Fatalf("Outcome = %v, want ErrorStuck", stats.Outcome)
	}
}
