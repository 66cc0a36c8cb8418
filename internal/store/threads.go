package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ThreadStatus is the lifecycle state of a context thread.
type ThreadStatus string

const (
	ThreadActive     ThreadStatus = "active"
	ThreadBlocked    ThreadStatus = "blocked"
	ThreadDormant    ThreadStatus = "dormant"
	ThreadCompleted  ThreadStatus = "completed"
	ThreadInProgress ThreadStatus = "in_progress"
)

// Thread links related work across sessions under one theme.
type Thread struct {
	ID           string       `json:"id"`
	Theme        string       `json:"theme"`
	SessionIDs   []string     `json:"session_ids"`
	KeyDecisions []string     `json:"key_decisions"`
	Status       ThreadStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

const threadColumns = `id, theme, session_ids, key_decisions, status, created_at, updated_at`

func scanThread(row rowScanner) (*Thread, error) {
	var (
		t                   Thread
		sessions, decisions string
		status              string
		created, updated    int64
	)
	if err := row.Scan(&t.ID, &t.Theme, &sessions, &decisions, &status, &created, &updated); err != nil {
		return nil, err
	}
	t.Status = ThreadStatus(status)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	if err := decodeJSON(sessions, "context_threads", t.ID, "session_ids", &t.SessionIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(decisions, "context_threads", t.ID, "key_decisions", &t.KeyDecisions); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertThread stores a thread. An existing thread keeps its created_at.
func (db *DB) UpsertThread(ctx context.Context, t *Thread) error {
	sessions, err := encodeJSON(t.SessionIDs)
	if err != nil {
		return fmt.Errorf("encode session ids: %w", err)
	}
	decisions, err := encodeJSON(t.KeyDecisions)
	if err != nil {
		return fmt.Errorf("encode key decisions: %w", err)
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO context_threads (`+threadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			theme = excluded.theme,
			session_ids = excluded.session_ids,
			key_decisions = excluded.key_decisions,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, t.ID, t.Theme, sessions, decisions, string(t.Status), millis(t.CreatedAt), millis(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

// GetThread returns a thread by id, or nil if not found.
func (db *DB) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM context_threads WHERE id = ?`, id)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

// ActiveThreads returns threads that are not completed, most recently
// updated first. A limit <= 0 returns all of them.
func (db *DB) ActiveThreads(ctx context.Context, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+threadColumns+` FROM context_threads
		WHERE status != 'completed'
		ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("active threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			if skipMalformed(err, "context_threads") {
				continue
			}
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, *t)
	}
	return threads, rows.Err()
}
