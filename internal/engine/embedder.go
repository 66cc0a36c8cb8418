package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// OllamaEmbedder uses Ollama's embedding API.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    strings.TrimSuffix(url, "/"),
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	o.dims = len(result.Embeddings[0])
	return result.Embeddings[0], nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(ctx context.Context, url, model string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	body, _ := json.Marshal(map[string]any{
		"model": model,
		"input": "test",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(url, "/")+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SelectEmbedder returns an Ollama embedder when the provider is "ollama" and
// the server answers, and a TF-IDF embedder over the stored memories otherwise.
func SelectEmbedder(ctx context.Context, db *store.DB, provider, url, model string) (Embedder, error) {
	if provider == "ollama" {
		if ProbeOllama(ctx, url, model) {
			return NewOllamaEmbedder(url, model, 0), nil
		}
		slog.Warn("ollama unreachable, falling back to tfidf", "component", "engine", "url", url, "model", model)
	}
	return NewTFIDFEmbedder(ctx, db, 512)
}

// Refresher is implemented by embedders whose model depends on the stored
// corpus. Refresh rebuilds it and reports whether the model changed, which
// makes every vector written under the old model stale.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// TFIDFEmbedder generates TF-IDF bag-of-words embeddings as a fallback.
// Vectors always have maxTerms dimensions so an external index keeps one
// collection shape while the vocabulary grows.
type TFIDFEmbedder struct {
	db       *store.DB
	maxTerms int

	mu      sync.RWMutex
	vocab   []string           // ordered vocabulary (top terms by doc frequency)
	idf     map[string]float64 // inverse document frequency per term
	version string
}

// NewTFIDFEmbedder builds a TF-IDF embedder from the text of every stored
// memory. Refresh rebuilds it as memories are added.
func NewTFIDFEmbedder(ctx context.Context, db *store.DB, maxTerms int) (*TFIDFEmbedder, error) {
	t := newTFIDF(nil, maxTerms)
	t.db = db
	if _, err := t.Refresh(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Refresh rebuilds the vocabulary from the stored memories.
func (t *TFIDFEmbedder) Refresh(ctx context.Context) (bool, error) {
	if t.db == nil {
		return false, nil
	}
	mems, err := t.db.RecentMemories(ctx, time.Time{}, 0)
	if err != nil {
		return false, fmt.Errorf("list memories for tfidf: %w", err)
	}

	var docs []string
	for _, m := range mems {
		if text := memoryText(m); text != "" {
			docs = append(docs, text)
		}
	}
	vocab, idf := buildVocabulary(docs, t.maxTerms)
	version := vocabularyVersion(vocab)

	t.mu.Lock()
	defer t.mu.Unlock()
	changed := version != t.version
	t.vocab, t.idf, t.version = vocab, idf, version
	return changed, nil
}

func newTFIDF(docs []string, maxTerms int) *TFIDFEmbedder {
	if maxTerms <= 0 {
		maxTerms = 512
	}
	vocab, idf := buildVocabulary(docs, maxTerms)
	return &TFIDFEmbedder{
		maxTerms: maxTerms,
		vocab:    vocab,
		idf:      idf,
		version:  vocabularyVersion(vocab),
	}
}

// buildVocabulary picks the top maxTerms terms by document frequency with
// their smoothed IDF.
func buildVocabulary(docs []string, maxTerms int) ([]string, map[string]float64) {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	// Ties break alphabetically so the vocabulary is stable across restarts.
	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(df))
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})

	n := min(maxTerms, len(terms))
	vocab := make([]string, n)
	idf := make(map[string]float64, n)
	numDocs := float64(max(len(docs), 1))
	for i := 0; i < n; i++ {
		vocab[i] = terms[i].term
		// IDF = log(N / df) + 1 (smoothed)
		idf[vocab[i]] = math.Log(numDocs/float64(terms[i].freq)) + 1.0
	}
	return vocab, idf
}

func vocabularyVersion(vocab []string) string {
	h := fnv.New32a()
	for _, term := range vocab {
		h.Write([]byte(term))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%08x", h.Sum32())
}

// Model names the vocabulary the vectors were built from.
func (t *TFIDFEmbedder) Model() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return "tfidf:" + t.version
}

func (t *TFIDFEmbedder) Dimensions() int { return t.maxTerms }

// Embed generates a normalized TF-IDF vector for the given text.
func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	vec := make([]float64, t.maxTerms)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	tf := make(map[string]int)
	maxTF := 0
	for _, tok := range tokens {
		tf[tok]++
		maxTF = max(maxTF, tf[tok])
	}

	for i, term := range t.vocab {
		count := tf[term]
		if count == 0 {
			continue
		}
		// Augmented TF to prevent bias towards longer documents
		augTF := 0.5 + 0.5*float64(count)/float64(maxTF)
		idf := t.idf[term]
		if idf == 0 {
			idf = 1.0
		}
		vec[i] = augTF * idf
	}

	normalize(vec)
	return vec, nil
}

// memoryText is the text embedded for a memory.
func memoryText(m memory.Memory) string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(m.Content); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(m.Rationale); s != "" {
		parts = append(parts, s)
	}
	if len(m.Tags) > 0 {
		parts = append(parts, strings.Join(m.Tags, " "))
	}
	return strings.Join(parts, " ")
}

// tokenize splits text into lowercase tokens, stripping punctuation.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 1 { // skip single-char tokens
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	if current.Len() > 1 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or empty vectors give 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
