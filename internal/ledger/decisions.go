package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// NotePayload is the shape of a "note" event's payload. Decisions are notes
// tagged "decision"; everything else is a free-form narrative note.
type NotePayload struct {
	Text     string          `json:"text,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
	Source   string          `json:"source,omitempty"`
	Decision *DecisionFields `json:"decision,omitempty"`
}

// DecisionFields is the structured form of a decision note. When absent,
// extractDecisionFields falls back to parsing Text.
type DecisionFields struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Decision is one row of the materialized decisions view.
type Decision struct {
	EventID      string
	Key          string
	Value        string
	Reason       string
	Domain       string
	Branch       string
	SupersedesID string
	IsActive     bool
	Ts           string
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// extractDecisionFields prefers the structured payload.decision field,
// falling back to parsing "<key>: <value> — <reason>" out of the note
// text for callers (and legacy events) that never set it.
func extractDecisionFields(payload NotePayload) (DecisionFields, bool) {
	if payload.Decision != nil && payload.Decision.Key != "" {
		return *payload.Decision, true
	}
	return parseDecisionText(payload.Text)
}

func parseDecisionText(text string) (DecisionFields, bool) {
	colon := strings.Index(text, ":")
	if colon < 0 {
		return DecisionFields{}, false
	}
	key := strings.TrimSpace(text[:colon])
	rest := strings.TrimSpace(text[colon+1:])
	if key == "" || rest == "" {
		return DecisionFields{}, false
	}

	value := rest
	reason := ""
	if i := strings.Index(rest, "—"); i >= 0 {
		value = strings.TrimSpace(rest[:i])
		reason = strings.TrimSpace(rest[i+len("—"):])
	} else if i := strings.Index(rest, " -- "); i >= 0 {
		value = strings.TrimSpace(rest[:i])
		reason = strings.TrimSpace(rest[i+4:])
	}
	if value == "" {
		return DecisionFields{}, false
	}
	return DecisionFields{Key: key, Value: value, Reason: reason}, true
}

func domainOf(key string) string {
	if i := strings.Index(key, "."); i >= 0 {
		return key[:i]
	}
	return key
}

// materializeDecision deactivates any existing active row for (branch, key)
// and inserts the new one as active, linking supersedes_id from a
// provenance edge tagged "supersedes" if present. Must run inside the same
// transaction as the event insert it projects.
func materializeDecision(ctx context.Context, tx *sql.Tx, eventID, branch, ts string, fields DecisionFields, refs Refs) error {
	supersedesID := ""
	for _, r := range refs.Provenance {
		if r.Rel == RelSupersedes {
			supersedesID = r.Target
			break
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE decisions SET is_active = 0 WHERE branch = ? AND key = ? AND is_active = 1`,
		branch, fields.Key); err != nil {
		return fmt.Errorf("deactivate prior decision: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (event_id, key, value, reason, domain, branch, supersedes_id, is_active, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		eventID, fields.Key, fields.Value, fields.Reason, domainOf(fields.Key), branch, nullableString(supersedesID), ts)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ActiveDecisions returns every currently-active decision on branch,
// optionally filtered to a domain and/or a SQL LIKE pattern over the key.
func (s *Store) ActiveDecisions(ctx context.Context, branch, domain, keyPattern string) ([]Decision, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT event_id, key, value, reason, domain, branch, supersedes_id, is_active, ts
		FROM decisions WHERE branch = ? AND is_active = 1`)
	args := []interface{}{branch}
	if domain != "" {
		query.WriteString(` AND domain = ?`)
		args = append(args, domain)
	}
	if keyPattern != "" {
		query.WriteString(` AND key LIKE ?`)
		args = append(args, keyPattern)
	}
	query.WriteString(` ORDER BY key ASC`)

	return s.queryDecisions(ctx, query.String(), args...)
}

// DecisionTimeline returns every decision row (active or superseded) ever
// recorded for key on branch, oldest first.
func (s *Store) DecisionTimeline(ctx context.Context, branch, key string) ([]Decision, error) {
	return s.queryDecisions(ctx, `
		SELECT event_id, key, value, reason, domain, branch, supersedes_id, is_active, ts
		FROM decisions WHERE branch = ? AND key = ? ORDER BY id ASC`, branch, key)
}

// FindActiveDecision returns the single active decision for (branch, key),
// if any.
func (s *Store) FindActiveDecision(ctx context.Context, branch, key string) (*Decision, error) {
	rows, err := s.queryDecisions(ctx, `
		SELECT event_id, key, value, reason, domain, branch, supersedes_id, is_active, ts
		FROM decisions WHERE branch = ? AND key = ? AND is_active = 1 LIMIT 1`, branch, key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) queryDecisions(ctx context.Context, query string, args ...interface{}) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var supersedesID sql.NullString
		var isActive int
		if err := rows.Scan(&d.EventID, &d.Key, &d.Value, &d.Reason, &d.Domain, &d.Branch, &supersedesID, &isActive, &d.Ts); err != nil {
			return nil, fmt.Errorf("ledger: scan decision: %w", err)
		}
		d.SupersedesID = supersedesID.String
		d.IsActive = isActive != 0
		out = append(out, d)
	}
	return out, rows.Err()
}
