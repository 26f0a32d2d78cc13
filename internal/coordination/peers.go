package coordination

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Heartbeat is a session's liveness and activity snapshot, persisted at
// state/session.<sid>.json.
type Heartbeat struct {
	SessionID          string    `json:"session_id"`
	StartedAt          time.Time `json:"started_at"`
	LastHeartbeat      time.Time `json:"last_heartbeat"`
	Label              string    `json:"label,omitempty"`
	FocusFiles         []string  `json:"focus_files,omitempty"`
	ActiveTasks        []string  `json:"active_tasks,omitempty"`
	FilesModifiedCount int       `json:"files_modified_count"`
	TotalEdits         int       `json:"total_edits"`
	RecentCommits      []string  `json:"recent_commits,omitempty"`
	Branch             string    `json:"branch,omitempty"`
	CurrentPhase       string    `json:"current_phase,omitempty"`
}

// HeartbeatPath returns the canonical per-session heartbeat file path
// under a project's state directory.
func HeartbeatPath(stateDir, sessionID string) string {
	return filepath.Join(stateDir, fmt.Sprintf("session.%s.json", sessionID))
}

// TouchHeartbeat loads the existing heartbeat for sessionID if present
// (preserving StartedAt), applies mutate, stamps LastHeartbeat to now, and
// writes it back atomically (tmp file + rename).
func TouchHeartbeat(stateDir, sessionID string, mutate func(*Heartbeat)) error {
	path := HeartbeatPath(stateDir, sessionID)

	hb := Heartbeat{SessionID: sessionID, StartedAt: time.Now().UTC()}
	if existing, err := readHeartbeat(path); err == nil {
		hb = existing
	}

	if mutate != nil {
		mutate(&hb)
	}
	hb.SessionID = sessionID
	hb.LastHeartbeat = time.Now().UTC()

	return writeHeartbeatAtomic(path, hb)
}

func readHeartbeat(path string) (Heartbeat, error) {
	var hb Heartbeat
	b, err := os.ReadFile(path)
	if err != nil {
		return hb, err
	}
	err = json.Unmarshal(b, &hb)
	return hb, err
}

func writeHeartbeatAtomic(path string, hb Heartbeat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("coordination: mkdir state dir: %w", err)
	}
	b, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("coordination: marshal heartbeat: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("coordination: write heartbeat tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("coordination: rename heartbeat: %w", err)
	}
	return nil
}

// DeleteHeartbeat removes a session's heartbeat file at SessionEnd.
func DeleteHeartbeat(stateDir, sessionID string) error {
	err := os.Remove(HeartbeatPath(stateDir, sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coordination: delete heartbeat: %w", err)
	}
	return nil
}

// Peer is another session's heartbeat, aged relative to now.
type Peer struct {
	Heartbeat
	Age time.Duration
}

// DiscoverPeers lists every non-stale heartbeat in stateDir other than
// selfSessionID, sorted by ascending age.
func DiscoverPeers(stateDir, selfSessionID string, staleAfter time.Duration) ([]Peer, error) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("coordination: read state dir: %w", err)
	}

	now := time.Now().UTC()
	var peers []Peer
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "session.") || !strings.HasSuffix(name, ".json") {
			continue
		}
		sid := strings.TrimSuffix(strings.TrimPrefix(name, "session."), ".json")
		if sid == selfSessionID {
			continue
		}

		hb, err := readHeartbeat(filepath.Join(stateDir, name))
		if err != nil {
			continue
		}
		age := now.Sub(hb.LastHeartbeat)
		if age > staleAfter {
			continue
		}
		peers = append(peers, Peer{Heartbeat: hb, Age: age})
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Age < peers[j].Age })
	return peers, nil
}

// InferSession returns the sole non-stale session in stateDir, or an error
// if zero or more than one qualify — the CLI has no other way to guess
// "which session am I" outside of an explicit --session flag.
func InferSession(stateDir string, staleAfter time.Duration) (string, error) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("coordination: no active sessions in %s", stateDir)
		}
		return "", fmt.Errorf("coordination: read state dir: %w", err)
	}

	now := time.Now().UTC()
	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "session.") || !strings.HasSuffix(name, ".json") {
			continue
		}
		hb, err := readHeartbeat(filepath.Join(stateDir, name))
		if err != nil {
			continue
		}
		if now.Sub(hb.LastHeartbeat) <= staleAfter {
			candidates = append(candidates, hb.SessionID)
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("coordination: no active sessions found")
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("coordination: %d active sessions found, specify --session explicitly", len(candidates))
	}
}
