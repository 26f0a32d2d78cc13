// Package contextpack renders the markdown injected into an agent's
// context at each hook event: the session-start briefing, the lightweight
// per-prompt nudge, and the session-end handoff.
package contextpack

import "time"

// DefaultBudget is the character budget for a SessionStart body when the
// caller leaves SessionStartInputs.Budget unset (zero or negative).
const DefaultBudget = 8000

// StaleAfter is how old a peer heartbeat can be before DiscoverPeers drops
// it from the rendered peer list.
const StaleAfter = 120 * time.Second

// tierFull is how many of the newest sessions get full detail; the next
// tierOneLiner sessions get a one-liner; the rest are aggregated.
const (
	tierFull     = 1
	tierOneLiner = 4
)
