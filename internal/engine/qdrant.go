package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

const payloadMemoryID = "memory_id"

// pointsClient is the part of *qdrant.Client the searcher uses.
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// QdrantSearcher keeps memory embeddings in a Qdrant collection. Memory
// records stay in SQLite; points carry only the memory id in their payload.
type QdrantSearcher struct {
	client     pointsClient
	collection string
	db         *store.DB
	embedder   Embedder

	mu    sync.Mutex
	ready bool
}

// NewQdrantSearcher connects to Qdrant over gRPC.
func NewQdrantSearcher(cfg QdrantConfig, db *store.DB, embedder Embedder) (*QdrantSearcher, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	slog.Info("connected to qdrant", "component", "engine", "host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)
	return newQdrantSearcher(client, cfg.Collection, db, embedder), nil
}

func newQdrantSearcher(client pointsClient, collection string, db *store.DB, embedder Embedder) *QdrantSearcher {
	return &QdrantSearcher{
		client:     client,
		collection: collection,
		db:         db,
		embedder:   embedder,
	}
}

// pointID maps a memory id onto the UUID space Qdrant accepts for point ids.
func pointID(memoryID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("recall:"+memoryID)).String())
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// ensureCollection creates the collection on first use, sized to the first
// vector written.
func (q *QdrantSearcher) ensureCollection(ctx context.Context, dims int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", q.collection, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %q: %w", q.collection, err)
		}
		slog.Info("created qdrant collection", "component", "engine", "collection", q.collection, "dims", dims)
	}
	q.ready = true
	return nil
}

// Index upserts the embedding of one memory.
func (q *QdrantSearcher) Index(ctx context.Context, id string, vec []float64) error {
	if len(vec) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, len(vec)); err != nil {
		return err
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(id),
			Vectors: qdrant.NewVectors(toFloat32(vec)...),
			Payload: qdrant.NewValueMap(map[string]any{payloadMemoryID: id}),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

// Remove deletes the points of the given memories.
func (q *QdrantSearcher) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(points...),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Search embeds the query and asks Qdrant for the nearest points.
func (q *QdrantSearcher) Search(ctx context.Context, query string, limit int) ([]memory.Memory, error) {
	if q.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	queryVec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := q.ensureCollection(ctx, len(queryVec)); err != nil {
		return nil, err
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(toFloat32(queryVec)...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}

	hits := make([]hit, 0, len(points))
	for _, p := range points {
		id := p.GetPayload()[payloadMemoryID].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, hit{id: id, sim: float64(p.GetScore())})
	}
	return resolveHits(ctx, q.db, hits, limit)
}

// Close releases the gRPC connection.
func (q *QdrantSearcher) Close() error {
	return q.client.Close()
}
