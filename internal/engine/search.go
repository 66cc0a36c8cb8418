package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// ErrNoEmbedder is returned by searches when no embedder is configured.
var ErrNoEmbedder = errors.New("no embedder configured")

const defaultSearchLimit = 10

// Searcher finds memories semantically close to a query. Returned memories
// carry their cosine similarity in Similarity, best first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]memory.Memory, error)
}

// Indexer is implemented by searchers that keep their own copy of the
// embeddings and need to be told about new or removed memories.
type Indexer interface {
	Index(ctx context.Context, id string, vec []float64) error
	Remove(ctx context.Context, ids []string) error
}

// LocalSearcher scans the embeddings stored in SQLite.
type LocalSearcher struct {
	db       *store.DB
	embedder Embedder
}

func NewLocalSearcher(db *store.DB, embedder Embedder) *LocalSearcher {
	return &LocalSearcher{db: db, embedder: embedder}
}

type hit struct {
	id  string
	sim float64
}

// Search embeds the query and ranks every stored vector by cosine
// similarity. Vectors written by another model are skipped.
func (s *LocalSearcher) Search(ctx context.Context, query string, limit int) ([]memory.Memory, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := s.db.AllVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	model := s.embedder.Model()
	var hits []hit
	skipped := 0
	for _, v := range vectors {
		if v.Model != model {
			skipped++
			continue
		}
		if sim := CosineSimilarity(queryVec, v.Embedding); sim > 0 {
			hits = append(hits, hit{id: v.MemoryID, sim: sim})
		}
	}
	if skipped > 0 {
		slog.Debug("search skipped vectors from another model", "component", "engine", "skipped", skipped, "model", model)
	}

	return resolveHits(ctx, s.db, hits, limit)
}

// resolveHits sorts hits best first, trims them to limit and loads the
// memories they point at.
func resolveHits(ctx context.Context, db *store.DB, hits []hit, limit int) ([]memory.Memory, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].sim > hits[j].sim
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ids := make([]string, len(hits))
	sims := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
		sims[h.id] = h.sim
	}

	mems, err := db.MemoriesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load search results: %w", err)
	}
	for i := range mems {
		mems[i].Similarity = memory.Clamp01(sims[mems[i].ID])
	}
	return mems, nil
}
