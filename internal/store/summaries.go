package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Level is the verbosity tier of a session summary.
type Level string

const (
	LevelImmediate  Level = "immediate"
	LevelRecent     Level = "recent"
	LevelHistorical Level = "historical"
)

// Summary is the text rendering of one session at one level. A session has at
// most one summary per level.
type Summary struct {
	SessionID     string    `json:"session_id"`
	Level         Level     `json:"level"`
	Text          string    `json:"summary_text"`
	TokenCount    int       `json:"token_count"`
	KeyDecisions  []string  `json:"key_decisions"`
	ModifiedFiles []string  `json:"modified_files"`
	CreatedAt     time.Time `json:"created_at"`
}

const summaryColumns = `session_id, level, summary_text, token_count, key_decisions, modified_files, created_at`

func scanSummary(row rowScanner) (*Summary, error) {
	var (
		s                Summary
		level            string
		decisions, files string
		created          int64
	)
	if err := row.Scan(&s.SessionID, &level, &s.Text, &s.TokenCount, &decisions, &files, &created); err != nil {
		return nil, err
	}
	s.Level = Level(level)
	s.CreatedAt = fromMillis(created)
	id := s.SessionID + "/" + level
	if err := decodeJSON(decisions, "session_summaries", id, "key_decisions", &s.KeyDecisions); err != nil {
		return nil, err
	}
	if err := decodeJSON(files, "session_summaries", id, "modified_files", &s.ModifiedFiles); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSummary stores a summary, overwriting any previous summary for the
// same session and level.
func (db *DB) UpsertSummary(ctx context.Context, s *Summary) error {
	decisions, err := encodeJSON(s.KeyDecisions)
	if err != nil {
		return fmt.Errorf("encode key decisions: %w", err)
	}
	files, err := encodeJSON(s.ModifiedFiles)
	if err != nil {
		return fmt.Errorf("encode modified files: %w", err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO session_summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, level) DO UPDATE SET
			summary_text = excluded.summary_text,
			token_count = excluded.token_count,
			key_decisions = excluded.key_decisions,
			modified_files = excluded.modified_files,
			created_at = excluded.created_at
	`, s.SessionID, string(s.Level), s.Text, s.TokenCount, decisions, files, millis(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// ListSummaries returns every stored summary of a session.
func (db *DB) ListSummaries(ctx context.Context, sessionID string) ([]Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM session_summaries
		WHERE session_id = ? ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			if skipMalformed(err, "session_summaries") {
				continue
			}
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, *s)
	}
	return summaries, rows.Err()
}

// GetSummary returns the summary of a session at one level, or nil.
func (db *DB) GetSummary(ctx context.Context, sessionID string, level Level) (*Summary, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+` FROM session_summaries
		WHERE session_id = ? AND level = ?
	`, sessionID, string(level))
	s, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return s, nil
}
