package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/untoldecay/edda/internal/contextpack"
	"github.com/untoldecay/edda/internal/coordination"
	"github.com/untoldecay/edda/internal/digest"
	"github.com/untoldecay/edda/internal/ledger"
	"github.com/untoldecay/edda/internal/signals"
)

// Deps is everything Dispatch needs to route one hook invocation.
type Deps struct {
	Store         *ledger.Store
	Branch        string
	ProjectID     string
	UserStoreDir  string
	StateDir      string
	ActivePlanPath string
	DigestOptions digest.Options
}

// Result is what a dispatched hook produced: stdout JSON (may be empty),
// a stderr warning (may be empty), and the process exit code.
type Result struct {
	Stdout   []byte
	Warning  string
	ExitCode int
}

// Dispatch decodes, redacts, and records one hook payload, then routes it
// to the matching handler. It never returns an error: hot-path I/O
// failures are swallowed so the host agent is never blocked, and a payload
// that cannot be parsed yields an empty Result with exit code 0.
func Dispatch(ctx context.Context, raw []byte, deps Deps) Result {
	in, err := ParseHookInput(raw)
	if err != nil {
		return Result{ExitCode: 0}
	}

	redacted := RedactJSON(in.Raw)
	env := BuildEnvelope(deps.ProjectID, in)
	env.Raw = redacted

	ledgerPath := SessionLedgerPath(deps.UserStoreDir, deps.ProjectID, in.SessionID)
	_ = AppendEnvelope(ledgerPath, env)
	_ = coordination.TouchHeartbeat(deps.StateDir, in.SessionID, nil)

	transcriptPath := TranscriptPath(deps.UserStoreDir, deps.ProjectID, in.SessionID)
	_ = IngestTranscript(in.TranscriptPath, transcriptPath)

	switch in.HookEventName {
	case "SessionStart":
		return dispatchSessionStart(ctx, in, deps)
	case "UserPromptSubmit":
		return dispatchUserPromptSubmit(in, deps)
	case "PostToolUse":
		return dispatchPostToolUse(in, deps)
	case "PreCompact":
		return dispatchPreCompact(deps)
	case "SessionEnd":
		return dispatchSessionEnd(ctx, in, deps, ledgerPath, transcriptPath)
	default:
		// PreToolUse, PostToolUseFailure, and anything unrecognized pass
		// through with no visible output.
		return Result{ExitCode: 0}
	}
}

func dispatchSessionStart(ctx context.Context, in HookInput, deps Deps) Result {
	body, err := contextpack.BuildSessionStart(ctx, contextpack.SessionStartInputs{
		Store:          deps.Store,
		Branch:         deps.Branch,
		SessionID:      in.SessionID,
		StateDir:       deps.StateDir,
		ActivePlanPath: deps.ActivePlanPath,
	})
	if err != nil || body == "" {
		return Result{ExitCode: 0}
	}
	out, err := contextpack.Wrap("SessionStart", body)
	if err != nil {
		return Result{ExitCode: 0}
	}
	clearCompactPending(deps.StateDir)
	return Result{Stdout: out, ExitCode: 0}
}

func dispatchUserPromptSubmit(in HookInput, deps Deps) Result {
	if compactPending(deps.StateDir) {
		clearCompactPending(deps.StateDir)
		// Only the flag is cleared here; the injection that follows is the
		// same lightweight one built for every other prompt.
	}

	body, err := contextpack.BuildUserPromptSubmit(deps.StateDir, in.SessionID)
	if err != nil || body == "" {
		return Result{ExitCode: 0}
	}
	out, err := contextpack.Wrap("UserPromptSubmit", body)
	if err != nil {
		return Result{ExitCode: 0}
	}
	return Result{Stdout: out, ExitCode: 0}
}

// toolInput is the shape of a PostToolUse payload's tool-specific body,
// enough to extract a Bash command for the nudge detector.
type toolInput struct {
	ToolInput struct {
		Command string `json:"command"`
	} `json:"tool_input"`
}

func dispatchPostToolUse(in HookInput, deps Deps) Result {
	var ti toolInput
	_ = json.Unmarshal(in.Raw, &ti)

	kind, trigger := ClassifySignal(in.ToolName, ti.ToolInput.Command)
	hint, err := Nudge(deps.StateDir, in.SessionID, kind, trigger)
	if err != nil || hint == "" {
		return Result{ExitCode: 0}
	}
	out, err := contextpack.Wrap("PostToolUse", hint)
	if err != nil {
		return Result{ExitCode: 0}
	}
	return Result{Stdout: out, ExitCode: 0}
}

func dispatchPreCompact(deps Deps) Result {
	setCompactPending(deps.StateDir)
	return Result{ExitCode: 0}
}

func dispatchSessionEnd(ctx context.Context, in HookInput, deps Deps, ledgerPath, transcriptPath string) Result {
	var stats signals.SessionStats
	if f, err := os.Open(transcriptPath); err == nil {
		stats, _ = signals.Extract(f)
		f.Close()
	}

	_, _ = digest.DigestSession(ctx, deps.Store, transcriptPath, ledgerPath, in.SessionID, deps.Branch, deps.DigestOptions)

	_ = digest.WritePrevDigestSnapshot(deps.StateDir, in.SessionID, stats)
	_ = coordination.DeleteHeartbeat(deps.StateDir, in.SessionID)
	cleanupSessionState(deps.StateDir, in.SessionID)

	warning := contextpack.SessionEndWarning(stats)
	if warning == "" {
		return Result{ExitCode: 0}
	}
	return Result{Warning: warning, ExitCode: 1}
}

func compactPendingPath(stateDir string) string {
	return filepath.Join(stateDir, "compact_pending")
}

func compactPending(stateDir string) bool {
	_, err := os.Stat(compactPendingPath(stateDir))
	return err == nil
}

func setCompactPending(stateDir string) {
	_ = os.MkdirAll(stateDir, 0o755)
	_ = os.WriteFile(compactPendingPath(stateDir), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}

func clearCompactPending(stateDir string) {
	_ = os.Remove(compactPendingPath(stateDir))
}

func cleanupSessionState(stateDir, sessionID string) {
	for _, pattern := range []string{
		"peer_count." + sessionID,
		"last_injection." + sessionID,
		"nudge_state." + sessionID + ".json",
		"autoclaim." + sessionID + ".json",
	} {
		_ = os.Remove(filepath.Join(stateDir, pattern))
	}
}
