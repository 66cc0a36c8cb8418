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
		Description: "sessions: working-session tracking",
		SQL: `
CREATE TABLE sessions (
    id               TEXT PRIMARY KEY,
    start_time       INTEGER NOT NULL,
    end_time         INTEGER,
    branch           TEXT NOT NULL DEFAULT '',
    working_dir      TEXT NOT NULL DEFAULT '',

    -- JSON encoded lists / maps
    active_files     TEXT NOT NULL DEFAULT '[]',
    commits          TEXT NOT NULL DEFAULT '[]',
    file_access      TEXT NOT NULL DEFAULT '{}',

    summary          TEXT,
    continuity_score REAL NOT NULL DEFAULT 0,
    duration_seconds INTEGER,

    CHECK (end_time IS NULL OR end_time >= start_time),
    CHECK (continuity_score >= 0 AND continuity_score <= 1)
);

CREATE INDEX idx_sessions_start_time ON sessions(start_time DESC);
CREATE INDEX idx_sessions_branch     ON sessions(branch);
CREATE INDEX idx_sessions_dir        ON sessions(working_dir);
`,
	},
	{
		Version:     2,
		Description: "session_summaries: one summary per session per level",
		SQL: `
CREATE TABLE session_summaries (
    id             INTEGER PRIMARY KEY,
    session_id     TEXT NOT NULL,
    level          TEXT NOT NULL CHECK (level IN ('immediate', 'recent', 'historical')),
    summary_text   TEXT NOT NULL,
    token_count    INTEGER NOT NULL DEFAULT 0,
    key_decisions  TEXT NOT NULL DEFAULT '[]',
    modified_files TEXT NOT NULL DEFAULT '[]',
    created_at     INTEGER NOT NULL,

    UNIQUE (session_id, level),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX idx_summaries_session_level ON session_summaries(session_id, level);
`,
	},
	{
		Version:     3,
		Description: "context_threads: related work across sessions",
		SQL: `
CREATE TABLE context_threads (
    id             TEXT PRIMARY KEY,
    theme          TEXT NOT NULL,
    session_ids    TEXT NOT NULL DEFAULT '[]',
    key_decisions  TEXT NOT NULL DEFAULT '[]',
    status         TEXT NOT NULL CHECK (status IN ('active', 'blocked', 'dormant', 'completed', 'in_progress')),
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX idx_threads_status  ON context_threads(status);
CREATE INDEX idx_threads_updated ON context_threads(updated_at DESC);
`,
	},
	{
		Version:     4,
		Description: "memories: typed records from the upstream producer",
		SQL: `
CREATE TABLE memories (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    content     TEXT NOT NULL,
    rationale   TEXT NOT NULL DEFAULT '',
    files       TEXT NOT NULL DEFAULT '[]',
    tags        TEXT NOT NULL DEFAULT '[]',
    branch      TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_memories_created ON memories(created_at DESC);
CREATE INDEX idx_memories_kind    ON memories(kind);
CREATE INDEX idx_memories_session ON memories(session_id);
`,
	},
	{
		Version:     5,
		Description: "memory_vectors: embedding vectors for local similarity search",
		SQL: `
CREATE TABLE memory_vectors (
    memory_id  TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
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
