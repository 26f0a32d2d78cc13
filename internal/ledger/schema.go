package ledger

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id       TEXT NOT NULL UNIQUE,
	ts             TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	branch         TEXT NOT NULL,
	parent_hash    TEXT,
	hash           TEXT NOT NULL,
	payload        TEXT NOT NULL,
	refs           TEXT NOT NULL DEFAULT '{}',
	schema_version INTEGER NOT NULL,
	digests        TEXT NOT NULL DEFAULT '[]',
	event_family   TEXT DEFAULT '',
	event_level    TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_branch ON events(branch);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_branch_type ON events(branch, event_type);
CREATE INDEX IF NOT EXISTS idx_events_branch_ts ON events(branch, ts DESC);

CREATE TABLE IF NOT EXISTS decisions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL,
	branch        TEXT NOT NULL,
	supersedes_id TEXT,
	is_active     INTEGER NOT NULL DEFAULT 1,
	ts            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_branch_key ON decisions(branch, key);
CREATE INDEX IF NOT EXISTS idx_decisions_active ON decisions(branch, key, is_active);
CREATE INDEX IF NOT EXISTS idx_decisions_domain ON decisions(domain);

CREATE TABLE IF NOT EXISTS refs_kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_meta (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);
`
