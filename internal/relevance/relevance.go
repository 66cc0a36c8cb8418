// Package relevance scores candidate memories against the current working
// context. Every function here is pure.
package relevance

import (
	"sort"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// Signal weights. They sum to 1 so a memory maxing every signal scores 1.
const (
	weightSemantic = 0.40
	weightFile     = 0.30
	weightRecency  = 0.15
	weightType     = 0.10
	weightTag      = 0.05
)

// Query describes what the caller is working on.
type Query struct {
	Files  []string
	Tags   []string // derived from Files when empty
	Intent Intent
	Now    time.Time // zero means time.Now()
}

func (q Query) now() time.Time {
	if q.Now.IsZero() {
		return time.Now()
	}
	return q.Now
}

func (q Query) tags() []string {
	if len(q.Tags) > 0 {
		return q.Tags
	}
	return TagsFromFiles(q.Files)
}

// Signals is the per-signal breakdown of a score, each in [0,1].
type Signals struct {
	Semantic float64 `json:"semantic"`
	File     float64 `json:"file"`
	Recency  float64 `json:"recency"`
	Type     float64 `json:"type"`
	Tag      float64 `json:"tag"`
}

// Total combines the signals with their weights, clamped to [0,1].
func (s Signals) Total() float64 {
	return memory.Clamp01(weightSemantic*s.Semantic +
		weightFile*s.File +
		weightRecency*s.Recency +
		weightType*s.Type +
		weightTag*s.Tag)
}

// Breakdown computes every signal for one memory.
func Breakdown(m memory.Memory, q Query) Signals {
	return Signals{
		Semantic: memory.Clamp01(m.Similarity),
		File:     memory.Clamp01(FileOverlap(m.Files, q.Files)),
		Recency:  Recency(m.Age(q.now())),
		Type:     TypeScore(m.Kind, q.Intent),
		Tag:      memory.Clamp01(TagOverlap(m.Tags, q.tags())),
	}
}

// Score returns the relevance of m to q in [0,1].
func Score(m memory.Memory, q Query) float64 {
	return Breakdown(m, q).Total()
}

// Rank scores every candidate and sorts them by relevance, highest first.
// Equal scores keep their input order.
func Rank(cands []memory.Memory, q Query) []memory.Scored {
	if len(cands) == 0 {
		return nil
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}
	if len(q.Tags) == 0 {
		q.Tags = TagsFromFiles(q.Files)
	}

	scored := make([]memory.Scored, len(cands))
	for i, m := range cands {
		scored[i] = memory.Scored{Memory: m, Relevance: Score(m, q)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})
	return scored
}

// ContextMemories picks up to limit memories for a session preamble:
// decisions first, up to half the slots, then the best of the rest by rank.
func ContextMemories(cands []memory.Memory, q Query, limit int) []memory.Scored {
	if limit <= 0 {
		return nil
	}
	ranked := Rank(cands, q)

	picked := make([]memory.Scored, 0, limit)
	taken := make([]bool, len(ranked))
	for i, s := range ranked {
		if len(picked) >= limit/2 {
			break
		}
		if s.Kind == memory.Decision {
			picked = append(picked, s)
			taken[i] = true
		}
	}
	for i, s := range ranked {
		if len(picked) >= limit {
			break
		}
		if !taken[i] {
			picked = append(picked, s)
		}
	}
	return picked
}

// Recency maps a memory's age onto a step function.
func Recency(age time.Duration) float64 {
	const day = 24 * time.Hour
	switch {
	case age <= day:
		return 1.0
	case age <= 7*day:
		return 0.8
	case age <= 30*day:
		return 0.6
	case age <= 90*day:
		return 0.4
	case age <= 365*day:
		return 0.2
	default:
		return 0.1
	}
}

// TagOverlap is the Jaccard index of two tag sets, compared case-insensitively.
func TagOverlap(memTags, queryTags []string) float64 {
	return memory.Jaccard(lower(memTags), lower(queryTags))
}

func lower(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	return out
}
