package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/edda/internal/ledger"
	"github.com/untoldecay/edda/internal/lockfile"
	"github.com/untoldecay/edda/internal/signals"
)

// Result describes what DigestSession actually did, for the caller's
// logging/exit-code decisions.
type Result string

const (
	ResultDigested        Result = "digested"
	ResultSkippedEmpty    Result = "skipped_empty"
	ResultAlreadyDigested Result = "already_digested"
	ResultLockTimeout     Result = "lock_timeout"
)

// Options configures one DigestSession call.
type Options struct {
	LockPath          string
	StateDir          string
	LockTimeout       time.Duration
	DigestFailedCmds  bool
	ActiveTasksPath   string // optional: state/active_tasks.json; DigestSession does not read it
}

// DigestSession is the orchestration described as digest_one_session: lock
// the workspace, extract the session's signals from its transcript, skip
// cleanly if there's nothing worth recording, otherwise append a
// session_digest note (plus optional failed-command milestones) and run
// passive decision harvest. sessionLedgerPath is the envelope ledger (hook
// metadata only); it is removed once the session has been digested or found
// empty, but never read for signal extraction.
func DigestSession(ctx context.Context, store *ledger.Store, transcriptPath, sessionLedgerPath, sessionID, branch string, opts Options) (Result, error) {
	st, err := LoadState(opts.StateDir)
	if err != nil {
		return "", err
	}
	if st.SessionID == sessionID {
		return ResultAlreadyDigested, nil
	}

	handle, err := lockfile.Acquire(opts.LockPath, opts.LockTimeout, lockfile.DefaultPollInterval)
	if err != nil {
		_ = RecordFailure(opts.StateDir, sessionID, err)
		return ResultLockTimeout, nil
	}
	defer handle.Release()

	stats, err := extractTranscriptStats(transcriptPath)
	if err != nil {
		_ = RecordFailure(opts.StateDir, sessionID, err)
		return "", fmt.Errorf("digest: extract stats: %w", err)
	}

	if isEmpty(stats) {
		if err := markDigested(opts.StateDir, sessionID, ""); err != nil {
			return "", err
		}
		_ = os.Remove(sessionLedgerPath)
		return ResultSkippedEmpty, nil
	}

	digestEvent, err := buildDigestEvent(branch, sessionID, stats)
	if err != nil {
		_ = RecordFailure(opts.StateDir, sessionID, err)
		return "", err
	}

	appended, err := store.AppendEvent(ctx, digestEvent)
	if err != nil {
		_ = RecordFailure(opts.StateDir, sessionID, err)
		return "", fmt.Errorf("digest: append digest event: %w", err)
	}

	if opts.DigestFailedCmds {
		for _, fc := range stats.FailedCmds {
			payload, _ := json.Marshal(map[string]string{"command_base": fc.Base, "snippet": fc.Snippet})
			if _, err := store.AppendEvent(ctx, ledger.Event{
				EventType: "cmd", Branch: branch, Payload: payload,
			}); err != nil {
				return "", fmt.Errorf("digest: append failed-cmd milestone: %w", err)
			}
		}
	}

	if err := harvestInferredDecisions(ctx, store, branch, sessionID, stats); err != nil {
		return "", fmt.Errorf("digest: harvest inferred decisions: %w", err)
	}

	if err := markDigested(opts.StateDir, sessionID, appended.EventID); err != nil {
		return "", err
	}
	_ = os.Remove(sessionLedgerPath)

	return ResultDigested, nil
}

// extractTranscriptStats opens transcriptPath and runs signals.Extract over
// it. A missing transcript (never ingested, or already cleaned up) is not a
// failure: it just means there's nothing to report, same as an empty file.
func extractTranscriptStats(transcriptPath string) (signals.SessionStats, error) {
	f, err := os.Open(transcriptPath)
	if os.IsNotExist(err) {
		return signals.SessionStats{}, nil
	}
	if err != nil {
		return signals.SessionStats{}, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return signals.Extract(f)
}

func isEmpty(s signals.SessionStats) bool {
	return s.ToolCalls == 0 && len(s.FailedCmds) == 0 && s.UserPrompts == 0
}

func markDigested(stateDir, sessionID, eventID string) error {
	st, err := LoadState(stateDir)
	if err != nil {
		return err
	}
	st.SessionID = sessionID
	st.DigestedAt = time.Now().UTC()
	st.EventID = eventID
	st.PendingSessionID = ""
	st.RetryCount = 0
	st.LastError = ""
	return SaveState(stateDir, st)
}

// digestPayload is the full session_digest note payload.
type digestPayload struct {
	Source        string                     `json:"source"`
	SessionID     string                     `json:"session_id"`
	ToolCalls     int                        `json:"tool_calls"`
	UserPrompts   int                        `json:"user_prompts"`
	DurationMins  float64                    `json:"duration_minutes"`
	FilesModified map[string]int             `json:"files_modified"`
	Commits       []signals.Commit           `json:"commits"`
	FailedCmds    []signals.FailedCommand    `json:"failed_commands"`
	Tasks         []signals.Task             `json:"tasks"`
	Outcome       signals.Outcome            `json:"outcome"`
}

func buildDigestEvent(branch, sessionID string, stats signals.SessionStats) (ledger.Event, error) {
	payload := digestPayload{
		Source:        "bridge:session_digest",
		SessionID:     sessionID,
		ToolCalls:     stats.ToolCalls,
		UserPrompts:   stats.UserPrompts,
		DurationMins:  stats.DurationMinutes(),
		FilesModified: stats.FilesModified,
		Commits:       stats.Commits,
		FailedCmds:    stats.FailedCmds,
		Tasks:         stats.Tasks,
		Outcome:       stats.Outcome,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("marshal digest payload: %w", err)
	}

	note := ledger.NotePayload{
		Text:   RenderDigestText(sessionID, stats),
		Tags:   []string{"session_digest"},
		Source: "bridge:session_digest",
	}
	noteBody, err := json.Marshal(struct {
		ledger.NotePayload
		Stats json.RawMessage `json:"stats"`
	}{NotePayload: note, Stats: body})
	if err != nil {
		return ledger.Event{}, err
	}

	return ledger.Event{
		EventType: "note",
		Branch:    branch,
		Payload:   noteBody,
		Refs: ledger.Refs{
			Provenance: []ledger.ProvenanceRef{{Target: "session:" + sessionID, Rel: ledger.RelBasedOn}},
		},
	}, nil
}

// DigestedNote is the decoded form of a session_digest note event, as
// produced by buildDigestEvent and consumed by session history rendering.
type DigestedNote struct {
	Text   string          `json:"text,omitempty"`
	Tags   []string        `json:"tags,omitempty"`
	Source string          `json:"source,omitempty"`
	Stats  digestPayload   `json:"stats"`
}

// ParseDigestedNote decodes a note event's payload, returning ok=false if it
// isn't a session_digest note (no "stats" field, or not tagged as such).
func ParseDigestedNote(payload json.RawMessage) (DigestedNote, bool) {
	var note DigestedNote
	if err := json.Unmarshal(payload, &note); err != nil {
		return DigestedNote{}, false
	}
	if !containsTag(note.Tags, "session_digest") {
		return DigestedNote{}, false
	}
	return note, true
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// RenderDigestText produces the short human-readable summary embedded in
// the digest note, also reused by context rendering for session history.
func RenderDigestText(sessionID string, stats signals.SessionStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s: %s (%d tool calls, %.0fm)", sessionID, stats.Outcome, stats.ToolCalls, stats.DurationMinutes())
	if len(stats.Commits) > 0 {
		fmt.Fprintf(&b, ", %d commit(s)", len(stats.Commits))
	}
	if len(stats.FilesModified) > 0 {
		fmt.Fprintf(&b, ", %d file(s) touched", len(stats.FilesModified))
	}
	if len(stats.FailedCmds) > 0 {
		fmt.Fprintf(&b, ", %d unresolved failure(s)", len(stats.FailedCmds))
	}
	return b.String()
}

// harvestInferredDecisions passively records a decision for each
// dependency added during the session that isn't already covered by a
// recorded decision (case-insensitive substring match against active
// decision values) — see the Open Questions note on this match's known
// over/under-matching behavior.
func harvestInferredDecisions(ctx context.Context, store *ledger.Store, branch, sessionID string, stats signals.SessionStats) error {
	if len(stats.DepsAdded) == 0 {
		return nil
	}

	active, err := store.ActiveDecisions(ctx, branch, "", "")
	if err != nil {
		return err
	}

	hint := contextHint(stats)

	for _, dep := range stats.DepsAdded {
		if coveredByExistingDecision(active, dep) {
			continue
		}
		fields := ledger.DecisionFields{Key: "dep." + dep, Value: dep, Reason: hint}
		payload, err := json.Marshal(ledger.NotePayload{
			Tags:     []string{"decision", "inferred"},
			Source:   "bridge:passive_harvest",
			Decision: &fields,
		})
		if err != nil {
			return err
		}
		if _, err := store.AppendEvent(ctx, ledger.Event{EventType: "note", Branch: branch, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}

func coveredByExistingDecision(active []ledger.Decision, dep string) bool {
	needle := strings.ToLower(dep)
	for _, d := range active {
		if strings.Contains(strings.ToLower(d.Value), needle) {
			return true
		}
	}
	return false
}

// contextHint builds the human-readable justification attached to a
// passively harvested decision: the in-progress task subject and/or the
// latest commit message, truncated to 80 chars.
func contextHint(stats signals.SessionStats) string {
	var parts []string

	tasks := append([]signals.Task(nil), stats.Tasks...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	for _, t := range tasks {
		if t.Status == "in_progress" {
			parts = append(parts, t.Subject)
			break
		}
	}
	if len(stats.Commits) > 0 {
		parts = append(parts, stats.Commits[len(stats.Commits)-1].Message)
	}

	hint := strings.Join(parts, " — ")
	if len(hint) > 80 {
		hint = hint[:80] + "…"
	}
	return hint
}
