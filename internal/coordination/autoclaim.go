package coordination

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AutoClaimState is the per-session record of the last auto-derived claim,
// distinguishing "never auto-claimed" from "auto-claimed this scope" so a
// manual claim is never silently overwritten.
type AutoClaimState struct {
	Label string   `json:"label"`
	Paths []string `json:"paths"`
}

func autoClaimPath(stateDir, sessionID string) string {
	return filepath.Join(stateDir, fmt.Sprintf("autoclaim.%s.json", sessionID))
}

var groupSegments = []string{"crates", "packages"}

// DeriveScope inspects the set of edited file paths and returns the
// dominant group's label and a single-glob path list. It tries
// crates/<name>/... or packages/<name>/... first; if neither segment
// appears anywhere, it falls back to src/<module>/....
func DeriveScope(editedPaths []string) (label string, paths []string, ok bool) {
	if label, paths, ok = dominantGroup(editedPaths, groupSegments); ok {
		return label, paths, true
	}
	return dominantGroup(editedPaths, []string{"src"})
}

func dominantGroup(paths []string, segments []string) (string, []string, bool) {
	counts := map[string]int{}
	segmentOf := map[string]string{}

	for _, p := range paths {
		parts := strings.Split(filepath.ToSlash(p), "/")
		for i, part := range parts {
			for _, seg := range segments {
				if part == seg && i+1 < len(parts) {
					name := parts[i+1]
					counts[name]++
					segmentOf[name] = seg
				}
			}
		}
	}

	if len(counts) == 0 {
		return "", nil, false
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	dominant := names[0]
	seg := segmentOf[dominant]
	return dominant, []string{fmt.Sprintf("%s/%s/*", seg, dominant)}, true
}

// MaybeAutoClaim derives a scope from editedPaths and, if it differs from
// the last recorded auto-claim for this session, writes a new claim event
// and updates the auto-claim state file. It never overwrites a manual
// claim: a claim exists for this session with no matching auto-claim state
// file is treated as manual.
func MaybeAutoClaim(l *Log, stateDir, sessionID string, editedPaths []string) error {
	label, paths, ok := DeriveScope(editedPaths)
	if !ok {
		return nil
	}

	acPath := autoClaimPath(stateDir, sessionID)
	prev, hadAutoClaim := readAutoClaimState(acPath)

	board, err := l.DeriveBoardState()
	if err != nil {
		return err
	}
	if existing, claimed := board.Claims[sessionID]; claimed && !hadAutoClaim {
		_ = existing // a manual claim exists; leave it alone
		return nil
	}

	if hadAutoClaim && prev.Label == label && equalStrings(prev.Paths, paths) {
		return nil // idempotent: nothing changed
	}

	if err := l.WriteClaim(sessionID, label, paths); err != nil {
		return err
	}
	return writeAutoClaimState(acPath, AutoClaimState{Label: label, Paths: paths})
}

func readAutoClaimState(path string) (AutoClaimState, bool) {
	var st AutoClaimState
	b, err := os.ReadFile(path)
	if err != nil {
		return st, false
	}
	if json.Unmarshal(b, &st) != nil {
		return st, false
	}
	return st, true
}

func writeAutoClaimState(path string, st AutoClaimState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
