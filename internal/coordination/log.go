// Package coordination implements the file-based, append-only,
// cooperative multi-session coordination log and the peer heartbeat plane
// derived from it.
package coordination

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EventType enumerates the coordination log's closed set of event kinds.
// "decision" is accepted on read as a legacy alias of "binding".
type EventType string

const (
	EventClaim       EventType = "claim"
	EventUnclaim     EventType = "unclaim"
	EventBinding     EventType = "binding"
	EventRequest     EventType = "request"
	EventRequestAck  EventType = "request_ack"
	eventLegacyAlias EventType = "decision"
)

// LogEvent is one line of coordination.jsonl.
type LogEvent struct {
	Ts        time.Time       `json:"ts"`
	SessionID string          `json:"session_id"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// ClaimPayload declares the scope a session is working on.
type ClaimPayload struct {
	Label string   `json:"label"`
	Paths []string `json:"paths"`
}

// BindingPayload records a key/value decision visible to every session.
type BindingPayload struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	ByLabel string `json:"by_label"`
}

// RequestPayload asks another scope's owner for something.
type RequestPayload struct {
	FromLabel string `json:"from_label"`
	ToLabel   string `json:"to_label"`
	Message   string `json:"message"`
}

// RequestAckPayload acknowledges a Request, identified by its sender.
type RequestAckPayload struct {
	FromLabel string `json:"from_label"`
}

// Log appends to and replays a single project's coordination.jsonl.
type Log struct {
	path string
}

// Open returns a handle to the coordination log at path. The file is
// created lazily on first write; Open never creates it.
func Open(path string) *Log {
	return &Log{path: path}
}

// MigrateLegacyName renames a pre-existing decisions.jsonl to
// coordination.jsonl if only the legacy file exists. It is a no-op
// otherwise.
func MigrateLegacyName(dir string) error {
	legacy := filepath.Join(dir, "decisions.jsonl")
	current := filepath.Join(dir, "coordination.jsonl")

	if _, err := os.Stat(current); err == nil {
		return nil
	}
	if _, err := os.Stat(legacy); err != nil {
		return nil
	}
	if err := os.Rename(legacy, current); err != nil {
		return fmt.Errorf("coordination: migrate legacy log: %w", err)
	}
	return nil
}

func (l *Log) append(e LogEvent) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("coordination: marshal event: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("coordination: mkdir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("coordination: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("coordination: append: %w", err)
	}
	return nil
}

func marshalPayload(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// WriteClaim appends a claim event for sessionID.
func (l *Log) WriteClaim(sessionID, label string, paths []string) error {
	return l.append(LogEvent{SessionID: sessionID, EventType: EventClaim, Payload: marshalPayload(ClaimPayload{Label: label, Paths: paths})})
}

// WriteUnclaim appends an unclaim event for sessionID.
func (l *Log) WriteUnclaim(sessionID string) error {
	return l.append(LogEvent{SessionID: sessionID, EventType: EventUnclaim, Payload: json.RawMessage(`{}`)})
}

// WriteBinding appends a binding event visible to every session.
func (l *Log) WriteBinding(sessionID, key, value, byLabel string) error {
	return l.append(LogEvent{SessionID: sessionID, EventType: EventBinding, Payload: marshalPayload(BindingPayload{Key: key, Value: value, ByLabel: byLabel})})
}

// WriteRequest appends a cross-session request.
func (l *Log) WriteRequest(sessionID, fromLabel, toLabel, message string) error {
	return l.append(LogEvent{SessionID: sessionID, EventType: EventRequest, Payload: marshalPayload(RequestPayload{FromLabel: fromLabel, ToLabel: toLabel, Message: message})})
}

// WriteRequestAck appends an acknowledgement for a prior request.
func (l *Log) WriteRequestAck(sessionID, fromLabel string) error {
	return l.append(LogEvent{SessionID: sessionID, EventType: EventRequestAck, Payload: marshalPayload(RequestAckPayload{FromLabel: fromLabel})})
}

// ReadAll returns every line of the log in append order. A missing file
// yields an empty slice, not an error.
func (l *Log) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("coordination: open log: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e LogEvent
		if err := json.Unmarshal(line, &e); err != nil {
			continue // malformed lines are skipped, never abort the replay
		}
		if e.EventType == eventLegacyAlias {
			e.EventType = EventBinding
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

// LineCount returns the number of lines currently in the log, used to
// decide when GC should trigger compaction.
func (l *Log) LineCount() (int, error) {
	events, err := l.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// Compact rewrites the log to its derived board-state form: live claims,
// deduped bindings, and every request/ack. Replaying the compacted log
// must reproduce byte-identical board state to replaying the original.
func (l *Log) Compact() error {
	state, err := l.DeriveBoardState()
	if err != nil {
		return err
	}

	tmp := l.path + ".compact.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("coordination: create compacted log: %w", err)
	}

	write := func(e LogEvent) error {
		line, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = f.Write(append(line, '\n'))
		return err
	}

	var writeErr error
	for _, c := range state.Claims {
		writeErr = write(LogEvent{Ts: c.Ts, SessionID: c.SessionID, EventType: EventClaim, Payload: marshalPayload(ClaimPayload{Label: c.Label, Paths: c.Paths})})
		if writeErr != nil {
			break
		}
	}
	if writeErr == nil {
		for _, b := range state.Bindings {
			if writeErr = write(LogEvent{Ts: b.Ts, EventType: EventBinding, Payload: marshalPayload(BindingPayload{Key: b.Key, Value: b.Value, ByLabel: b.ByLabel})}); writeErr != nil {
				break
			}
		}
	}
	if writeErr == nil {
		for _, r := range state.Requests {
			if writeErr = write(LogEvent{Ts: r.Ts, EventType: EventRequest, Payload: marshalPayload(RequestPayload{FromLabel: r.FromLabel, ToLabel: r.ToLabel, Message: r.Message})}); writeErr != nil {
				break
			}
		}
	}
	if writeErr == nil {
		for _, a := range state.Acks {
			if writeErr = write(LogEvent{Ts: a.Ts, EventType: EventRequestAck, Payload: marshalPayload(RequestAckPayload{FromLabel: a.FromLabel})}); writeErr != nil {
				break
			}
		}
	}

	f.Close()
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("coordination: write compacted log: %w", writeErr)
	}
	return os.Rename(tmp, l.path)
}
