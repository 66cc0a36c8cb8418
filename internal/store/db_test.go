package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recall.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_versions").Scan(&count); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("schema_versions rows = %d, want %d", count, len(migrations))
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"schema_versions", "sessions", "session_summaries", "context_threads", "memories", "memory_vectors"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestIndexesExist(t *testing.T) {
	db := testDB(t)

	indexes := []string{"idx_sessions_start_time", "idx_sessions_branch", "idx_sessions_dir", "idx_summaries_session_level"}
	for _, idx := range indexes {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q not found: %v", idx, err)
		}
	}
}

func TestSessionsConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`INSERT INTO sessions (id, start_time) VALUES ('ok', 1000)`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	// end before start
	_, err = db.Exec(`INSERT INTO sessions (id, start_time, end_time) VALUES ('bad-end', 2000, 1000)`)
	if err == nil {
		t.Error("expected error for end_time < start_time, got nil")
	}

	// continuity out of range
	_, err = db.Exec(`INSERT INTO sessions (id, start_time, continuity_score) VALUES ('bad-score', 1000, 1.5)`)
	if err == nil {
		t.Error("expected error for continuity_score > 1, got nil")
	}
}

func TestSummaryLevelConstraint(t *testing.T) {
	db := testDB(t)

	if _, err := db.Exec(`INSERT INTO sessions (id, start_time) VALUES ('s1', 1000)`); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	_, err := db.Exec(`
		INSERT INTO session_summaries (session_id, level, summary_text, created_at)
		VALUES ('s1', 'weekly', 'x', 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestThreadStatusConstraint(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO context_threads (id, theme, status, created_at, updated_at)
		VALUES ('t1', 'auth', 'abandoned', 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid status, got nil")
	}
}
