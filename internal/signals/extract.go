package signals

import (
	"bufio"
	"encoding/json"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Outcome classifies how a session ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "Completed"
	OutcomeErrorStuck Outcome = "ErrorStuck"
	OutcomeInterrupt  Outcome = "Interrupted"
)

// Task is a TaskCreate/TaskUpdate-derived item, ordered by ID ascending.
type Task struct {
	ID      int
	Subject string
	Status  string
}

// Commit is a captured `git commit` from command + paired result.
type Commit struct {
	Hash    string
	Message string
}

// FailedCommand aggregates one still-failing command base, healed (removed)
// entirely once the same base succeeds.
type FailedCommand struct {
	Base    string
	Snippet string
	Count   int
}

// SessionStats is the full one-pass extraction result.
type SessionStats struct {
	ToolCalls     int
	UserPrompts   int
	FirstTs       time.Time
	LastTs        time.Time
	Tasks         []Task
	FilesModified map[string]int
	Commits       []Commit
	FailedCmds    []FailedCommand
	DepsAdded     []string
	Outcome       Outcome
}

// DurationMinutes returns LastTs - FirstTs in minutes.
func (s SessionStats) DurationMinutes() float64 {
	if s.FirstTs.IsZero() || s.LastTs.IsZero() {
		return 0
	}
	return s.LastTs.Sub(s.FirstTs).Minutes()
}

// noisePathSubstr filters noise files out of file-edit counting — skill
// definitions get edited constantly and drown out real signal.
const noisePathSubstr = ".claude/skills/"

var errorLineRe = regexp.MustCompile(`(?i)(error|panic|failed)`)
var locationLineRe = regexp.MustCompile(`-->|(?i)\bat\b|src/|(?i)assert`)
var commitResultRe = regexp.MustCompile(`^\[(\S+)\s+([0-9a-f]+)\]\s+(.*)$`)

var depAddCommandRe = regexp.MustCompile(
	`^(?:npm install|npm i|yarn add|pnpm add|cargo add|go get|pip install|pip3 install|poetry add|bundle add)\s+(\S+)`)

// Extract performs the single pass over a transcript JSONL reader.
func Extract(r io.Reader) (SessionStats, error) {
	stats := SessionStats{FilesModified: map[string]int{}}

	failed := map[string]*FailedCommand{}
	failedOrder := []string{}
	nextTaskID := 1
	tasksByID := map[int]*Task{}

	pendingBashCmd := map[string]string{}  // tool_use_id -> command
	pendingCommitMsg := map[string]string{} // tool_use_id -> extracted -m message
	seenDeps := map[string]bool{}

	trailingFailures := 0
	lastWasUserPrompt := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}

		ts, _ := time.Parse(time.RFC3339Nano, line.Timestamp)
		if !ts.IsZero() {
			if stats.FirstTs.IsZero() || ts.Before(stats.FirstTs) {
				stats.FirstTs = ts
			}
			if ts.After(stats.LastTs) {
				stats.LastTs = ts
			}
		}

		switch line.Type {
		case "assistant":
			for _, block := range line.Message.Content {
				if block.Type != "tool_use" {
					continue
				}
				stats.ToolCalls++
				handleToolUse(block, &stats, tasksByID, &nextTaskID, pendingBashCmd, pendingCommitMsg)
			}
			lastWasUserPrompt = false

		case "user":
			hasToolResult := false
			for _, block := range line.Message.Content {
				if block.Type == "tool_result" {
					hasToolResult = true
					success := handleToolResult(block, &stats, pendingBashCmd, pendingCommitMsg, failed, &failedOrder, seenDeps)
					if success {
						trailingFailures = 0
					} else if block.IsError {
						trailingFailures++
					}
				}
			}
			if !hasToolResult {
				stats.UserPrompts++
				lastWasUserPrompt = true
			} else {
				lastWasUserPrompt = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, err
	}

	for _, t := range tasksByID {
		stats.Tasks = append(stats.Tasks, *t)
	}
	sort.Slice(stats.Tasks, func(i, j int) bool { return stats.Tasks[i].ID < stats.Tasks[j].ID })

	for _, base := range failedOrder {
		if fc, ok := failed[base]; ok {
			stats.FailedCmds = append(stats.FailedCmds, *fc)
		}
	}

	for dep := range seenDeps {
		stats.DepsAdded = append(stats.DepsAdded, dep)
	}
	sort.Strings(stats.DepsAdded)

	switch {
	case trailingFailures >= 3:
		stats.Outcome = OutcomeErrorStuck
	case lastWasUserPrompt:
		stats.Outcome = OutcomeInterrupt
	default:
		stats.Outcome = OutcomeCompleted
	}

	return stats, nil
}

func handleToolUse(block ContentBlock, stats *SessionStats, tasksByID map[int]*Task, nextTaskID *int,
	pendingBashCmd, pendingCommitMsg map[string]string) {
	switch block.Name {
	case "TaskCreate":
		var in taskCreateInput
		if json.Unmarshal(block.Input, &in) == nil {
			id := *nextTaskID
			*nextTaskID++
			tasksByID[id] = &Task{ID: id, Subject: in.Subject, Status: "pending"}
		}
	case "TaskUpdate":
		var in taskUpdateInput
		if json.Unmarshal(block.Input, &in) == nil {
			id, err := in.ID.Int64()
			if err != nil {
				return
			}
			t, ok := tasksByID[int(id)]
			if !ok {
				return
			}
			if in.Status != "" {
				t.Status = in.Status
			}
			if in.Subject != "" {
				t.Subject = in.Subject
			}
		}
	case "Edit", "Write":
		var in editInput
		if json.Unmarshal(block.Input, &in) == nil && in.FilePath != "" && !strings.Contains(in.FilePath, noisePathSubstr) {
			stats.FilesModified[in.FilePath]++
		}
	case "Bash":
		var in bashInput
		if json.Unmarshal(block.Input, &in) == nil {
			pendingBashCmd[block.ID] = in.Command
			if strings.Contains(in.Command, "git commit") {
				if msg, ok := extractCommitMessageArg(in.Command); ok {
					pendingCommitMsg[block.ID] = msg
				}
			}
		}
	}
}

// handleToolResult processes one tool_result block, returning true if it
// represents a success (so the caller can reset the trailing-failure
// streak).
func handleToolResult(block ContentBlock, stats *SessionStats, pendingBashCmd, pendingCommitMsg map[string]string,
	failed map[string]*FailedCommand, failedOrder *[]string, seenDeps map[string]bool) bool {

	command, isBash := pendingBashCmd[block.ToolUseID]
	if !isBash {
		return !block.IsError
	}
	delete(pendingBashCmd, block.ToolUseID)

	resultText := block.ResultText()

	if strings.Contains(command, "git commit") {
		if hash, msg, ok := parseCommitResult(resultText); ok {
			if msg == "" {
				msg = pendingCommitMsg[block.ToolUseID]
			}
			stats.Commits = append(stats.Commits, Commit{Hash: hash, Message: msg})
		}
		delete(pendingCommitMsg, block.ToolUseID)
	}

	base := commandBaseKey(command)

	if block.IsError {
		snippet := extractErrorSnippet(resultText)
		if fc, ok := failed[base]; ok {
			fc.Snippet = snippet
			fc.Count++
		} else {
			failed[base] = &FailedCommand{Base: base, Snippet: snippet, Count: 1}
			*failedOrder = append(*failedOrder, base)
		}
		return false
	}

	// Healing: a later success for the same base forgets its failure.
	delete(failed, base)
	for i, b := range *failedOrder {
		if b == base {
			*failedOrder = append((*failedOrder)[:i], (*failedOrder)[i+1:]...)
			break
		}
	}

	if m := depAddCommandRe.FindStringSubmatch(strings.TrimSpace(command)); m != nil {
		seenDeps[m[1]] = true
	}

	return true
}

// commandBaseKey is the first two whitespace tokens of the command,
// truncated at " -- ", first line only.
func commandBaseKey(command string) string {
	line := command
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, " -- "); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return fields[0] + " " + fields[1]
}

// extractCommitMessageArg pulls the -m "..." or -m '...' argument out of a
// git commit command line. Does not handle escaped quotes or heredocs —
// a known, documented limitation, not silently papered over.
func extractCommitMessageArg(command string) (string, bool) {
	idx := strings.Index(command, "-m ")
	if idx < 0 {
		return "", false
	}
	rest := command[idx+3:]
	rest = strings.TrimLeft(rest, " ")
	if rest == "" {
		return "", false
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return "", false
	}
	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return "", false
	}
	return rest[1 : 1+end], true
}

func parseCommitResult(resultText string) (hash, message string, ok bool) {
	for _, line := range strings.Split(resultText, "\n") {
		if m := commitResultRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return m[2], m[3], true
		}
	}
	return "", "", false
}

// extractErrorSnippet finds the first line mentioning error/panic/failed,
// optionally folds in the next line if it looks like a source location or
// assertion, and truncates to 200 chars.
func extractErrorSnippet(resultText string) string {
	lines := strings.Split(resultText, "\n")
	for i, line := range lines {
		if errorLineRe.MatchString(line) {
			snippet := strings.TrimSpace(line)
			if i+1 < len(lines) && locationLineRe.MatchString(lines[i+1]) {
				snippet += " " + strings.TrimSpace(lines[i+1])
			}
			return truncate(snippet, 200)
		}
	}
	return truncate(strings.TrimSpace(resultText), 200)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
