package engine

import (
	"context"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// Graph walks relationships between memories.
type Graph interface {
	Related(ctx context.Context, memoryID string, limit int) ([]memory.Memory, error)
}

// FileGraph relates memories that touch the same files.
type FileGraph struct {
	db *store.DB
}

func NewFileGraph(db *store.DB) *FileGraph {
	return &FileGraph{db: db}
}

// Related returns the memories sharing the most files with memoryID.
func (g *FileGraph) Related(ctx context.Context, memoryID string, limit int) ([]memory.Memory, error) {
	return g.db.RelatedByFiles(ctx, memoryID, limit)
}
