// Package engine owns the memory side of recall: recording memories,
// embedding them, finding candidates for injection and expiring old data.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

const (
	candidateWindow  = 30 * 24 * time.Hour
	recentScanLimit  = 50
	enrichFrom       = 3
	relatedPerHit    = 2
	relatedSimFactor = 0.5
)

// Engine records memories, keeps their embeddings current and expires old
// sessions and memories.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	Searcher Searcher
	Graph    Graph

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Engine with a file-sharing graph and no embedder.
func New(db *store.DB) *Engine {
	return &Engine{
		DB:     db,
		Graph:  NewFileGraph(db),
		stopCh: make(chan struct{}),
	}
}

// SetEmbedder configures the embedding provider. A nil searcher is replaced
// with a LocalSearcher over the same embedder.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
	if e.Searcher == nil && emb != nil {
		e.Searcher = NewLocalSearcher(e.DB, emb)
	}
}

// SetSearcher configures the vector collaborator.
func (e *Engine) SetSearcher(s Searcher) {
	e.Searcher = s
}

// Search returns memories semantically close to query.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]memory.Memory, error) {
	if e.Searcher == nil {
		return nil, ErrNoEmbedder
	}
	return e.Searcher.Search(ctx, query, limit)
}

// RecordMemory stores a memory produced upstream and embeds it. A missing id
// is generated. Embedding failures are logged; the memory is still stored
// and EmbedMissing picks it up later.
func (e *Engine) RecordMemory(ctx context.Context, m *memory.Memory) error {
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("record memory: empty content")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := e.DB.SaveMemory(ctx, m); err != nil {
		return err
	}
	if e.refresh(ctx) {
		return nil
	}
	if err := e.embed(ctx, *m); err != nil {
		slog.Warn("memory stored without embedding", "component", "engine", "memory", m.ID, "err", err)
	}
	return nil
}

// embed generates and stores the embedding for one memory, then hands it to
// the searcher's index when it keeps one.
func (e *Engine) embed(ctx context.Context, m memory.Memory) error {
	if e.Embedder == nil {
		return nil
	}
	text := memoryText(m)
	if text == "" {
		return nil
	}

	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed memory %s: %w", m.ID, err)
	}
	if err := e.DB.SaveVector(ctx, m.ID, vec, e.Embedder.Model()); err != nil {
		return err
	}
	if idx, ok := e.Searcher.(Indexer); ok {
		if err := idx.Index(ctx, m.ID, vec); err != nil {
			return fmt.Errorf("index memory %s: %w", m.ID, err)
		}
	}
	return nil
}

// refresh rebuilds a corpus-dependent embedder and re-embeds every memory
// when its model changed. It reports whether that happened.
func (e *Engine) refresh(ctx context.Context) bool {
	r, ok := e.Embedder.(Refresher)
	if !ok {
		return false
	}
	changed, err := r.Refresh(ctx)
	if err != nil {
		slog.Warn("embedder refresh failed", "component", "engine", "err", err)
		return false
	}
	if !changed {
		return false
	}
	n, err := e.EmbedMissing(ctx)
	if err != nil {
		slog.Warn("re-embedding after refresh failed", "component", "engine", "err", err)
	}
	slog.Debug("embedder refreshed", "component", "engine", "model", e.Embedder.Model(), "embedded", n)
	return true
}

// EmbedMissing embeds every memory that has no vector from the current model.
func (e *Engine) EmbedMissing(ctx context.Context) (int, error) {
	if e.Embedder == nil {
		return 0, nil
	}

	ids, err := e.DB.MissingVectors(ctx, e.Embedder.Model())
	if err != nil {
		return 0, err
	}
	mems, err := e.DB.MemoriesByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, m := range mems {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		if err := e.embed(ctx, m); err != nil {
			slog.Warn("embed missing", "component", "engine", "memory", m.ID, "err", err)
			continue
		}
		embedded++
	}
	return embedded, nil
}

// Candidates gathers the memories worth considering for injection into work
// on files: semantic hits for the file names and branch, recent memories on
// the same files, and graph neighbours of the best hits. Collaborator
// failures are logged and leave their share out.
func (e *Engine) Candidates(ctx context.Context, files []string, branch string, limit int) []memory.Memory {
	byID := make(map[string]memory.Memory)
	var order []string
	add := func(m memory.Memory) {
		prev, ok := byID[m.ID]
		if !ok {
			order = append(order, m.ID)
			byID[m.ID] = m
			return
		}
		if m.Similarity > prev.Similarity {
			byID[m.ID] = m
		}
	}

	var hits []memory.Memory
	if query := candidateQuery(files, branch); query != "" && e.Searcher != nil {
		var err error
		hits, err = e.Searcher.Search(ctx, query, limit)
		if err != nil {
			slog.Warn("candidate search failed", "component", "engine", "err", err)
		}
		for _, m := range hits {
			add(m)
		}
	}

	if len(files) > 0 {
		recent, err := e.DB.RecentMemories(ctx, time.Now().Add(-candidateWindow), recentScanLimit)
		if err != nil {
			slog.Warn("candidate recent memories failed", "component", "engine", "err", err)
		}
		current := memory.FileSet(files)
		for _, m := range recent {
			if memory.Overlap(m.Files, current) > 0 {
				add(m)
			}
		}
	}

	if e.Graph != nil {
		for _, h := range hits[:min(len(hits), enrichFrom)] {
			related, err := e.Graph.Related(ctx, h.ID, relatedPerHit)
			if err != nil {
				slog.Debug("graph enrichment failed", "component", "engine", "memory", h.ID, "err", err)
				continue
			}
			for _, r := range related {
				r.Similarity = h.Similarity * relatedSimFactor
				add(r)
			}
		}
	}

	out := make([]memory.Memory, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// candidateQuery turns the working files and branch into search text.
func candidateQuery(files []string, branch string) string {
	var words []string
	for _, f := range files {
		base := filepath.Base(f)
		words = append(words, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if branch != "" && branch != "main" && branch != "master" {
		words = append(words, strings.NewReplacer("/", " ", "-", " ", "_", " ").Replace(branch))
	}
	return strings.Join(words, " ")
}

// PurgeResult counts what a purge removed.
type PurgeResult struct {
	Sessions int64 `json:"sessions"`
	Memories int64 `json:"memories"`
}

// Purge deletes sessions and memories older than before. Points held by an
// external index are removed too.
func (e *Engine) Purge(ctx context.Context, before time.Time) (PurgeResult, error) {
	var res PurgeResult

	var expired []string
	if _, ok := e.Searcher.(Indexer); ok {
		old, err := e.DB.MemoriesBetween(ctx, time.Time{}, before.Add(-time.Millisecond), memory.KindUnknown)
		if err != nil {
			return res, err
		}
		for _, m := range old {
			expired = append(expired, m.ID)
		}
	}

	n, err := e.DB.PurgeSessions(ctx, before)
	if err != nil {
		return res, err
	}
	res.Sessions = n

	if n, err = e.DB.PurgeMemories(ctx, before); err != nil {
		return res, err
	}
	res.Memories = n

	if idx, ok := e.Searcher.(Indexer); ok && len(expired) > 0 {
		if err := idx.Remove(ctx, expired); err != nil {
			slog.Warn("purge index", "component", "engine", "err", err)
		}
	}
	return res, nil
}

// StartRetentionTimer purges data older than days on startup and then every
// interval. Days <= 0 disables retention.
func (e *Engine) StartRetentionTimer(days int, interval time.Duration) {
	if days <= 0 {
		return
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(days) * 24 * time.Hour

	purge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := e.Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Error("retention purge", "component", "engine", "err", err)
			return
		}
		if res.Sessions > 0 || res.Memories > 0 {
			slog.Info("retention purge", "component", "engine", "sessions", res.Sessions, "memories", res.Memories)
		}
	}

	purge()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				purge()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
