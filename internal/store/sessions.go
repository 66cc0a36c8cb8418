package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Session is a tracked working session: the files, branch and directory an
// agent was working in between two boundaries.
type Session struct {
	ID              string         `json:"id"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Branch          string         `json:"branch"`
	WorkingDir      string         `json:"working_dir"`
	ActiveFiles     []string       `json:"active_files"`
	Commits         []string       `json:"commits"`
	Summary         string         `json:"summary,omitempty"`
	ContinuityScore float64        `json:"continuity_score"`
	FileAccess      map[string]int `json:"file_access,omitempty"`
	TotalDuration   time.Duration  `json:"total_duration,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndTime == nil
}

// LastActivity returns the end time of a closed session, or its start time.
func (s *Session) LastActivity() time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return s.StartTime
}

// HasFile reports whether path is in the session's active file set.
func (s *Session) HasFile(path string) bool {
	for _, f := range s.ActiveFiles {
		if f == path {
			return true
		}
	}
	return false
}

const sessionColumns = `id, start_time, end_time, branch, working_dir, active_files, commits, file_access, summary, continuity_score, duration_seconds`

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                      Session
		start                  int64
		end, dur               sql.NullInt64
		files, commits, access string
		summary                sql.NullString
	)
	if err := row.Scan(&s.ID, &start, &end, &s.Branch, &s.WorkingDir, &files, &commits, &access, &summary, &s.ContinuityScore, &dur); err != nil {
		return nil, err
	}
	s.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		s.EndTime = &t
	}
	if dur.Valid {
		s.TotalDuration = time.Duration(dur.Int64) * time.Second
	}
	s.Summary = summary.String

	if err := decodeJSON(files, "sessions", s.ID, "active_files", &s.ActiveFiles); err != nil {
		return nil, err
	}
	if err := decodeJSON(commits, "sessions", s.ID, "commits", &s.Commits); err != nil {
		return nil, err
	}
	if err := decodeJSON(access, "sessions", s.ID, "file_access", &s.FileAccess); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			if skipMalformed(err, "sessions") {
				continue
			}
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpsertSession inserts the session or replaces every field of an existing
// session with the same id.
func (db *DB) UpsertSession(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("upsert session: empty id")
	}
	files, err := encodeJSON(s.ActiveFiles)
	if err != nil {
		return fmt.Errorf("encode active files: %w", err)
	}
	commits, err := encodeJSON(s.Commits)
	if err != nil {
		return fmt.Errorf("encode commits: %w", err)
	}
	access, err := encodeJSON(s.FileAccess)
	if err != nil {
		return fmt.Errorf("encode file access: %w", err)
	}

	var end, dur any
	if s.EndTime != nil {
		end = millis(*s.EndTime)
	}
	if s.TotalDuration > 0 {
		dur = int64(s.TotalDuration / time.Second)
	}
	var summary any
	if s.Summary != "" {
		summary = s.Summary
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			branch = excluded.branch,
			working_dir = excluded.working_dir,
			active_files = excluded.active_files,
			commits = excluded.commits,
			file_access = excluded.file_access,
			summary = excluded.summary,
			continuity_score = excluded.continuity_score,
			duration_seconds = excluded.duration_seconds
	`, s.ID, millis(s.StartTime), end, s.Branch, s.WorkingDir, files, commits, access, summary, s.ContinuityScore, dur)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession returns a session by id, or nil if not found.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// SessionsBetween returns sessions that started within [start, end], newest
// first. An empty dir matches every working directory.
func (db *DB) SessionsBetween(ctx context.Context, start, end time.Time, dir string) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE start_time >= ? AND start_time <= ? AND (? = '' OR working_dir = ?)
		ORDER BY start_time DESC
	`, millis(start), millis(end), dir, dir)
	if err != nil {
		return nil, fmt.Errorf("sessions between: %w", err)
	}
	return scanSessions(rows)
}

// LastSession returns the most recently started session, optionally limited to
// a working directory. Returns nil if there is none.
func (db *DB) LastSession(ctx context.Context, dir string) (*Session, error) {
	// A few rows so a malformed newest row does not hide the one before it.
	rows, err := db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE (? = '' OR working_dir = ?)
		ORDER BY start_time DESC LIMIT 5
	`, dir, dir)
	if err != nil {
		return nil, fmt.Errorf("last session: %w", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// RecentSessions returns sessions started at or after since, newest first.
// A limit <= 0 returns all of them.
func (db *DB) RecentSessions(ctx context.Context, since time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE start_time >= ?
		ORDER BY start_time DESC LIMIT ?
	`, millis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	return scanSessions(rows)
}

// CloseSession sets end_time, total duration and an optional summary on an
// open session. It returns false, without error, when the session is missing
// or already closed.
func (db *DB) CloseSession(ctx context.Context, id, summary string, at time.Time) (bool, error) {
	end := millis(at)
	result, err := db.ExecContext(ctx, `
		UPDATE sessions SET
			end_time = MAX(?, start_time),
			duration_seconds = (MAX(?, start_time) - start_time) / 1000,
			summary = COALESCE(NULLIF(?, ''), summary)
		WHERE id = ? AND end_time IS NULL
	`, end, end, summary, id)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// SessionsWithFile returns sessions from the last N days whose active file
// set contains path.
func (db *DB) SessionsWithFile(ctx context.Context, path string, days int) ([]Session, error) {
	since := time.Now().AddDate(0, 0, -days)
	// instr() is a cheap prefilter; membership is checked exactly after decode.
	rows, err := db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE start_time >= ? AND instr(active_files, ?) > 0
		ORDER BY start_time DESC
	`, millis(since), path)
	if err != nil {
		return nil, fmt.Errorf("sessions with file: %w", err)
	}
	candidates, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}

	var sessions []Session
	for i := range candidates {
		if candidates[i].HasFile(path) {
			sessions = append(sessions, candidates[i])
		}
	}
	return sessions, nil
}

// PurgeSessions deletes sessions that started before the cutoff, together
// with their summaries. Returns the number of sessions removed.
func (db *DB) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	cutoff := millis(before)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM session_summaries
		WHERE session_id IN (SELECT id FROM sessions WHERE start_time < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("purge summaries: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE start_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return n, nil
}

// SessionStats summarizes sessions started since a point in time.
type SessionStats struct {
	TotalSessions    int     `json:"total_sessions"`
	AvgDurationHours float64 `json:"avg_duration_hours"`
	AvgContinuity    float64 `json:"avg_continuity"`
	ActiveFilesCount int     `json:"active_files_count"`
	BranchesUsed     int     `json:"branches_used"`
}

// Stats aggregates session statistics since the given time.
func (db *DB) Stats(ctx context.Context, since time.Time) (*SessionStats, error) {
	sessions, err := db.RecentSessions(ctx, since, 0)
	if err != nil {
		return nil, err
	}
	stats := &SessionStats{TotalSessions: len(sessions)}
	if len(sessions) == 0 {
		return stats, nil
	}

	var totalDur time.Duration
	var totalCont float64
	files := make(map[string]struct{})
	branches := make(map[string]struct{})
	for _, s := range sessions {
		totalDur += s.TotalDuration
		totalCont += s.ContinuityScore
		for _, f := range s.ActiveFiles {
			files[f] = struct{}{}
		}
		branches[strings.TrimSpace(s.Branch)] = struct{}{}
	}
	n := float64(len(sessions))
	stats.AvgDurationHours = totalDur.Hours() / n
	stats.AvgContinuity = totalCont / n
	stats.ActiveFilesCount = len(files)
	stats.BranchesUsed = len(branches)
	return stats, nil
}
