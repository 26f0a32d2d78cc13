// Package bridge is the hook dispatch entry point: it decodes one hook
// payload from stdin, redacts and records it, then routes by hook-event
// name to the context-rendering and digest machinery.
package bridge

import (
	"encoding/json"
	"time"
)

// HookInput is a decoded hook payload. The host may send snake_case or
// camelCase keys; ParseHookInput accepts both.
type HookInput struct {
	HookEventName  string
	SessionID      string
	TranscriptPath string
	Cwd            string
	PermissionMode string
	ToolName       string
	ToolUseID      string
	Raw            json.RawMessage
}

// ParseHookInput decodes raw into a HookInput, trying the snake_case key
// first and falling back to camelCase for every field.
func ParseHookInput(raw []byte) (HookInput, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return HookInput{}, err
	}

	in := HookInput{Raw: raw}
	fields := []struct {
		dst          *string
		snake, camel string
	}{
		{&in.HookEventName, "hook_event_name", "hookEventName"},
		{&in.SessionID, "session_id", "sessionId"},
		{&in.TranscriptPath, "transcript_path", "transcriptPath"},
		{&in.Cwd, "cwd", "cwd"},
		{&in.PermissionMode, "permission_mode", "permissionMode"},
		{&in.ToolName, "tool_name", "toolName"},
		{&in.ToolUseID, "tool_use_id", "toolUseId"},
	}
	for _, f := range fields {
		if v, ok := generic[f.snake]; ok {
			_ = json.Unmarshal(v, f.dst)
		}
		if *f.dst == "" {
			if v, ok := generic[f.camel]; ok {
				_ = json.Unmarshal(v, f.dst)
			}
		}
	}
	return in, nil
}

// Envelope is the canonical, redacted trace record appended to a
// session's per-user-store ledger file: one line per hook call, metadata
// only. The session's raw transcript (mirrored separately via
// TranscriptPath/IngestTranscript) is what the digest pipeline's signal
// extractor actually reads.
type Envelope struct {
	Ts             time.Time       `json:"ts"`
	ProjectID      string          `json:"project_id"`
	SessionID      string          `json:"session_id"`
	HookEventName  string          `json:"hook_event_name"`
	TranscriptPath string          `json:"transcript_path"`
	Cwd            string          `json:"cwd"`
	PermissionMode string          `json:"permission_mode"`
	ToolName       string          `json:"tool_name"`
	ToolUseID      string          `json:"tool_use_id"`
	Raw            json.RawMessage `json:"raw"`
}

// BuildEnvelope wraps a parsed, redacted hook input for appending.
func BuildEnvelope(projectID string, in HookInput) Envelope {
	return Envelope{
		Ts:             time.Now().UTC(),
		ProjectID:      projectID,
		SessionID:      in.SessionID,
		HookEventName:  in.HookEventName,
		TranscriptPath: in.TranscriptPath,
		Cwd:            in.Cwd,
		PermissionMode: in.PermissionMode,
		ToolName:       in.ToolName,
		ToolUseID:      in.ToolUseID,
		Raw:            in.Raw,
	}
}
