package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "raw_messages: raw transcript tier",
		SQL: `
CREATE TABLE raw_messages (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    user_name   TEXT,
    role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content     TEXT NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT 'text',
    archived    INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_raw_user      ON raw_messages(user_id, archived);
CREATE INDEX idx_raw_created   ON raw_messages(created_at);
`,
	},
	{
		Version:     2,
		Description: "memory_records: summarized memory timeline with activation scores",
		SQL: `
CREATE TABLE memory_records (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    summary      TEXT NOT NULL,
    ref_ids      TEXT NOT NULL DEFAULT '[]',
    prev_id      TEXT REFERENCES memory_records(id),
    source_type  TEXT NOT NULL DEFAULT 'private',
    started_at   INTEGER NOT NULL,
    ended_at     INTEGER NOT NULL,
    active_score REAL NOT NULL DEFAULT 100,
    indexed      INTEGER NOT NULL DEFAULT 1,
    created_at   INTEGER NOT NULL
);

CREATE INDEX idx_records_user    ON memory_records(user_id, indexed);
CREATE INDEX idx_records_score   ON memory_records(active_score);
CREATE INDEX idx_records_created ON memory_records(created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "profile_attributes + profile_proposals: guarded user profile",
		SQL: `
CREATE TABLE profile_attributes (
    user_id        TEXT NOT NULL,
    attr_key       TEXT NOT NULL,
    value          TEXT NOT NULL,
    confirmations  INTEGER NOT NULL DEFAULT 1,
    last_confirmed INTEGER NOT NULL,
    PRIMARY KEY (user_id, attr_key)
);

CREATE TABLE profile_proposals (
    user_id       TEXT NOT NULL,
    attr_key      TEXT NOT NULL,
    value         TEXT NOT NULL,
    confirmations INTEGER NOT NULL DEFAULT 1,
    first_seen    INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL,
    source_ids    TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (user_id, attr_key, value)
);
`,
	},
	{
		Version:     4,
		Description: "maintenance_runs: last-run guard for scheduled passes",
		SQL: `
CREATE TABLE maintenance_runs (
    name     TEXT PRIMARY KEY,
    last_run TEXT NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
