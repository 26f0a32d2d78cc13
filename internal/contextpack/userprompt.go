package contextpack

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/untoldecay/edda/internal/coordination"
)

// peerCountPath tracks the last peer count this session observed, so a
// 0→N transition (someone else just joined the workspace) can be detected
// and answered with the full coordination protocol instead of a one-liner.
func peerCountPath(stateDir, sessionID string) string {
	return filepath.Join(stateDir, fmt.Sprintf("peer_count.%s", sessionID))
}

func readPeerCount(stateDir, sessionID string) int {
	b, err := os.ReadFile(peerCountPath(stateDir, sessionID))
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(string(b)))
	return n
}

func writePeerCount(stateDir, sessionID string, n int) error {
	return os.WriteFile(peerCountPath(stateDir, sessionID), []byte(strconv.Itoa(n)), 0o644)
}

// lastInjectionPath dedupes UserPromptSubmit output: if the rendered body
// is byte-identical to the last one emitted for this session, emit nothing.
func lastInjectionPath(stateDir, sessionID string) string {
	return filepath.Join(stateDir, fmt.Sprintf("last_injection.%s", sessionID))
}

// BuildUserPromptSubmit renders the lightweight per-prompt injection: a
// workspace section plus either peer updates or (on a 0→N peer transition)
// the full coordination protocol. Returns "" when the rendered body is
// identical to the last one emitted for this session.
func BuildUserPromptSubmit(stateDir, sessionID string) (string, error) {
	peers, err := coordination.DiscoverPeers(stateDir, sessionID, StaleAfter)
	if err != nil {
		return "", fmt.Errorf("contextpack: discover peers: %w", err)
	}

	prevCount := readPeerCount(stateDir, sessionID)
	if err := writePeerCount(stateDir, sessionID, len(peers)); err != nil {
		return "", fmt.Errorf("contextpack: write peer count: %w", err)
	}

	var b strings.Builder
	b.WriteString("## Workspace\n\n")

	if prevCount == 0 && len(peers) > 0 {
		b.WriteString(renderTail(stateDir, sessionID))
	} else if len(peers) > 0 {
		for _, p := range peers {
			label := p.Label
			if label == "" {
				label = p.SessionID
			}
			fmt.Fprintf(&b, "- %s active (%d edits)\n", label, p.TotalEdits)
		}
	} else {
		b.WriteString("No other active sessions.\n")
	}

	rendered := b.String()

	last, _ := os.ReadFile(lastInjectionPath(stateDir, sessionID))
	if string(last) == rendered {
		return "", nil
	}
	_ = os.WriteFile(lastInjectionPath(stateDir, sessionID), []byte(rendered), 0o644)

	return rendered, nil
}
