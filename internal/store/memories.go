package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

const memoryColumns = `id, kind, content, rationale, files, tags, branch, session_id, created_at`

func scanMemory(row rowScanner) (*memory.Memory, error) {
	var (
		m           memory.Memory
		kind        string
		files, tags string
		created     int64
	)
	if err := row.Scan(&m.ID, &kind, &m.Content, &m.Rationale, &files, &tags, &m.Branch, &m.SessionID, &created); err != nil {
		return nil, err
	}
	k, err := memory.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: memories %s.kind: %v", ErrMalformed, m.ID, err)
	}
	m.Kind = k
	m.Timestamp = fromMillis(created)
	if err := decodeJSON(files, "memories", m.ID, "files", &m.Files); err != nil {
		return nil, err
	}
	if err := decodeJSON(tags, "memories", m.ID, "tags", &m.Tags); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]memory.Memory, error) {
	defer rows.Close()

	var memories []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			if skipMalformed(err, "memories") {
				continue
			}
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

// SaveMemory inserts or replaces a memory record. The id must be set by the
// caller; a zero timestamp is stamped with the current time.
func (db *DB) SaveMemory(ctx context.Context, m *memory.Memory) error {
	if m.ID == "" {
		return fmt.Errorf("save memory: empty id")
	}
	if m.Kind == memory.KindUnknown {
		return fmt.Errorf("save memory: unknown kind")
	}
	files, err := encodeJSON(m.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			rationale = excluded.rationale,
			files = excluded.files,
			tags = excluded.tags,
			branch = excluded.branch,
			session_id = excluded.session_id,
			created_at = excluded.created_at
	`, m.ID, m.Kind.String(), m.Content, m.Rationale, files, tags, m.Branch, m.SessionID, millis(m.Timestamp))
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// MemoriesByIDs returns the memories with the given ids in the order the ids
// were given. Unknown ids are left out.
func (db *DB) MemoriesByIDs(ctx context.Context, ids []string) ([]memory.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("memories by ids: %w", err)
	}
	found, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]memory.Memory, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	ordered := make([]memory.Memory, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// RecentMemories returns memories created at or after since, newest first.
// A limit <= 0 returns all of them.
func (db *DB) RecentMemories(ctx context.Context, since time.Time, limit int) ([]memory.Memory, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?
	`, millis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	return scanMemories(rows)
}

// MemoriesBetween returns memories of one kind created within [start, end],
// oldest first. KindUnknown matches every kind.
func (db *DB) MemoriesBetween(ctx context.Context, start, end time.Time, kind memory.Kind) ([]memory.Memory, error) {
	name := ""
	if kind != memory.KindUnknown {
		name = kind.String()
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE created_at >= ? AND created_at <= ? AND (? = '' OR kind = ?)
		ORDER BY created_at ASC
	`, millis(start), millis(end), name, name)
	if err != nil {
		return nil, fmt.Errorf("memories between: %w", err)
	}
	return scanMemories(rows)
}

// MemoriesForSession returns every memory recorded under a session id.
func (db *DB) MemoriesForSession(ctx context.Context, sessionID string) ([]memory.Memory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("memories for session: %w", err)
	}
	return scanMemories(rows)
}

// RelatedByFiles returns other memories that share at least one file with
// the given memory, ordered by the number of shared files then recency.
func (db *DB) RelatedByFiles(ctx context.Context, id string, limit int) ([]memory.Memory, error) {
	origin, err := db.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if origin == nil || len(origin.Files) == 0 {
		return nil, nil
	}

	// json_each keeps the match exact; the files column is a JSON array.
	args := []any{id}
	placeholders := make([]string, 0, len(origin.Files))
	for _, f := range origin.Files {
		args = append(args, f)
		placeholders = append(placeholders, "?")
	}
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.kind, m.content, m.rationale, m.files, m.tags, m.branch, m.session_id, m.created_at
		FROM memories m, json_each(m.files) f
		WHERE m.id != ? AND json_valid(m.files) AND f.value IN (`+strings.Join(placeholders, ",")+`)
		GROUP BY m.id
		ORDER BY COUNT(*) DESC, m.created_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("related by files: %w", err)
	}
	return scanMemories(rows)
}

// DeleteMemory removes a memory and its vector. Returns false if it did not
// exist.
func (db *DB) DeleteMemory(ctx context.Context, id string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// PurgeMemories deletes memories created before the cutoff. Returns the
// number removed.
func (db *DB) PurgeMemories(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM memories WHERE created_at < ?`, millis(before))
	if err != nil {
		return 0, fmt.Errorf("purge memories: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
