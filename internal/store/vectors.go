package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds the embedding of one memory.
type VectorRecord struct {
	MemoryID   string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  time.Time
}

// encodeEmbedding packs a vector as little-endian float64s, 8 bytes each.
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a memory.
func (db *DB) SaveVector(ctx context.Context, memoryID string, embedding []float64, model string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO memory_vectors (memory_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			created_at = excluded.created_at
	`, memoryID, encodeEmbedding(embedding), model, len(embedding), millis(time.Now()))
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for a memory, or nil if not found.
func (db *DB) GetVector(ctx context.Context, memoryID string) (*VectorRecord, error) {
	var (
		v       VectorRecord
		blob    []byte
		created int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT memory_id, embedding, model, dimensions, created_at
		FROM memory_vectors WHERE memory_id = ?
	`, memoryID).Scan(&v.MemoryID, &blob, &v.Model, &v.Dimensions, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	v.CreatedAt = fromMillis(created)
	return &v, nil
}

// AllVectors returns every stored vector record.
func (db *DB) AllVectors(ctx context.Context) ([]VectorRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT memory_id, embedding, model, dimensions, created_at
		FROM memory_vectors
	`)
	if err != nil {
		return nil, fmt.Errorf("all vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var (
			v       VectorRecord
			blob    []byte
			created int64
		)
		if err := rows.Scan(&v.MemoryID, &blob, &v.Model, &v.Dimensions, &created); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		v.CreatedAt = fromMillis(created)
		records = append(records, v)
	}
	return records, rows.Err()
}

// MissingVectors returns ids of memories that have no embedding yet. When
// model is set, embeddings written by any other model count as missing.
func (db *DB) MissingVectors(ctx context.Context, model string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.id FROM memories m
		LEFT JOIN memory_vectors v ON v.memory_id = m.id
		WHERE v.memory_id IS NULL OR (? != '' AND v.model != ?)
		ORDER BY m.created_at ASC
	`, model, model)
	if err != nil {
		return nil, fmt.Errorf("missing vectors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteVector removes the embedding for a memory.
func (db *DB) DeleteVector(ctx context.Context, memoryID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM memory_vectors WHERE memory_id = ?", memoryID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}
