// Package ledger implements the hash-chained append-only event store and
// its materialized decisions view, backed by SQLite (WAL mode) through the
// pure-Go ncruces/go-sqlite3 driver.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is a single workspace's event ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger database at path, applies
// pragmas, runs the schema, and migrates older databases in place.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}

	return s, nil
}

// Close checkpoints the WAL back into the main file and releases the
// connection, so the workspace is left with a single quiescent file.
func (s *Store) Close() error {
	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit tx: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		version = SchemaVersion
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_meta (id, version) VALUES (1, ?)`, version)
		return err
	}
	if err != nil {
		return err
	}

	if version < 2 {
		if err := s.backfillDecisions(ctx); err != nil {
			return fmt.Errorf("backfill decisions: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE schema_meta SET version = ? WHERE id = 1`, SchemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// backfillDecisions rebuilds the decisions table from scratch by replaying
// every note event in insertion order. It also doubles as the store's
// disaster-recovery path: the decisions table can always be regenerated
// from the event log alone.
func (s *Store) backfillDecisions(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, ts, event_type, branch, payload, refs
		FROM events WHERE event_type = 'note' ORDER BY seq ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type noteRow struct {
		eventID, ts, branch, payload, refs string
	}
	var notes []noteRow
	for rows.Next() {
		var n noteRow
		var eventType string
		if err := rows.Scan(&n.eventID, &n.ts, &eventType, &n.branch, &n.payload, &n.refs); err != nil {
			return err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM decisions`); err != nil {
			return err
		}
		for _, n := range notes {
			var payload NotePayload
			if err := json.Unmarshal([]byte(n.payload), &payload); err != nil {
				continue
			}
			if !hasTag(payload.Tags, "decision") {
				continue
			}
			fields, ok := extractDecisionFields(payload)
			if !ok {
				continue
			}
			var refs Refs
			_ = json.Unmarshal([]byte(n.refs), &refs)
			if err := materializeDecision(ctx, tx, n.eventID, n.branch, n.ts, fields, refs); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendEvent assigns EventID/Ts/SchemaVersion/ParentHash/Hash as needed,
// inserts e, and — for decision notes — atomically materializes the
// decisions-table projection in the same transaction.
func (s *Store) AppendEvent(ctx context.Context, e Event) (Event, error) {
	if e.EventID == "" {
		e.EventID = NewEventID()
	}
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SchemaVersion
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := lastEventHashTx(ctx, tx)
		if err != nil {
			return err
		}
		e.ParentHash = parent
		e.Hash = ComputeHash(e)

		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		refsJSON, err := json.Marshal(e.Refs)
		if err != nil {
			return fmt.Errorf("marshal refs: %w", err)
		}
		digestsJSON, err := json.Marshal(e.Digests)
		if err != nil {
			return fmt.Errorf("marshal digests: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (event_id, ts, event_type, branch, parent_hash, hash, payload, refs, schema_version, digests, event_family, event_level)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, e.Ts.Format(time.RFC3339Nano), e.EventType, e.Branch,
			nullableString(e.ParentHash), e.Hash, string(payloadJSON), string(refsJSON),
			e.SchemaVersion, string(digestsJSON), e.EventFamily, e.EventLevel,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		if e.EventType == "note" {
			var payload NotePayload
			if err := json.Unmarshal(e.Payload, &payload); err == nil && hasTag(payload.Tags, "decision") {
				if fields, ok := extractDecisionFields(payload); ok {
					if err := materializeDecision(ctx, tx, e.EventID, e.Branch, e.Ts.Format(time.RFC3339Nano), fields, e.Refs); err != nil {
						return fmt.Errorf("materialize decision: %w", err)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// PersistedSchemaVersion returns the schema_meta row written by migrate,
// for callers (edda doctor) that need to compare it against the binary's
// own SchemaVersion without duplicating the migration query.
func (s *Store) PersistedSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return SchemaVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read schema version: %w", err)
	}
	return version, nil
}

// LastEventHash returns the hash of the most recently appended event in
// insertion order across the whole ledger, or "" if the ledger is empty.
func (s *Store) LastEventHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM events ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: last event hash: %w", err)
	}
	return hash, nil
}

func lastEventHashTx(ctx context.Context, tx *sql.Tx) (string, error) {
	var hash string
	err := tx.QueryRowContext(ctx, `SELECT hash FROM events ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// IterEvents returns every event on branch (or every branch if branch is
// empty) in insertion order. Callers needing only recent events should
// prefer EventsSince.
func (s *Store) IterEvents(ctx context.Context, branch string) ([]Event, error) {
	return s.queryEvents(ctx, branch, time.Time{})
}

// EventsSince returns events on branch with ts >= since, in insertion
// order.
func (s *Store) EventsSince(ctx context.Context, branch string, since time.Time) ([]Event, error) {
	return s.queryEvents(ctx, branch, since)
}

func (s *Store) queryEvents(ctx context.Context, branch string, since time.Time) ([]Event, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT event_id, ts, event_type, branch, parent_hash, hash, payload, refs, schema_version, digests, event_family, event_level FROM events WHERE 1=1`)
	var args []interface{}
	if branch != "" {
		query.WriteString(` AND branch = ?`)
		args = append(args, branch)
	}
	if !since.IsZero() {
		query.WriteString(` AND ts >= ?`)
		args = append(args, since.Format(time.RFC3339Nano))
	}
	query.WriteString(` ORDER BY seq ASC`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts string
		var parentHash sql.NullString
		var payload, refs, digests string

		if err := rows.Scan(&e.EventID, &ts, &e.EventType, &e.Branch, &parentHash, &e.Hash,
			&payload, &refs, &e.SchemaVersion, &digests, &e.EventFamily, &e.EventLevel); err != nil {
			return nil, fmt.Errorf("ledger: scan event: %w", err)
		}
		e.Ts, _ = time.Parse(time.RFC3339Nano, ts)
		e.ParentHash = parentHash.String
		e.Payload = json.RawMessage(payload)
		_ = json.Unmarshal([]byte(refs), &e.Refs)
		_ = json.Unmarshal([]byte(digests), &e.Digests)
		events = append(events, e)
	}
	return events, rows.Err()
}

// HeadBranch and SetHeadBranch track which branch the ledger currently
// considers "current", independent of any VCS state.
func (s *Store) HeadBranch(ctx context.Context) (string, error) {
	return s.getRef(ctx, "head_branch")
}

func (s *Store) SetHeadBranch(ctx context.Context, name string) error {
	return s.setRef(ctx, "head_branch", name)
}

func (s *Store) BranchesJSON(ctx context.Context) (string, error) {
	return s.getRef(ctx, "branches")
}

func (s *Store) SetBranchesJSON(ctx context.Context, value string) error {
	return s.setRef(ctx, "branches", value)
}

func (s *Store) getRef(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM refs_kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: get ref %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setRef(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refs_kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("ledger: set ref %s: %w", key, err)
	}
	return nil
}
