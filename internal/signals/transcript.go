// Package signals extracts deterministic session statistics from an
// agent's transcript: tasks, edited files, commits, and failed commands
// with healing, in a single pass.
package signals

import "encoding/json"

// Line is one record of a transcript JSONL file: an alternating stream of
// assistant tool-use turns and user tool-result turns.
type Line struct {
	Type      string  `json:"type"` // "assistant" | "user"
	Timestamp string  `json:"timestamp"`
	Message   Message `json:"message"`
}

// Message carries the role and content blocks of one transcript line.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged union over the block shapes that matter to
// signal extraction: tool_use, tool_result, and text.
type ContentBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Text      string          `json:"text,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or array of blocks; resolved lazily
}

// ResultText best-efforts a human-readable string out of a tool_result
// content block, which the transcript format allows to be either a plain
// string or an array of further content blocks.
func (c ContentBlock) ResultText() string {
	if len(c.Content) == 0 {
		return ""
	}
	var asString string
	if json.Unmarshal(c.Content, &asString) == nil {
		return asString
	}
	var blocks []ContentBlock
	if json.Unmarshal(c.Content, &blocks) == nil {
		out := ""
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return ""
}

type editInput struct {
	FilePath string `json:"file_path"`
}

type bashInput struct {
	Command string `json:"command"`
}

type taskCreateInput struct {
	Subject string `json:"subject"`
}

type taskUpdateInput struct {
	ID      json.Number `json:"id"`
	Status  string      `json:"status"`
	Subject string      `json:"subject"`
}
