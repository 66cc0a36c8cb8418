package inject

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/relevance"
	"github.com/lazypower/recall/internal/store"
	"github.com/lazypower/recall/internal/summarizer"
)

const (
	maxCandidates     = 15
	maxHistorical     = 3
	historicalBelow   = 10
	fallbackRecent    = 5
	minRawRelevance   = 0.4
	freshCandidateAge = 2 * time.Hour
)

// Tier priorities given to summary pseudo memories.
const (
	immediatePriority  = 1.0
	recentPriority     = 0.7
	historicalPriority = 0.4
)

// gather assembles the ranked candidate set for selection.
func (o *Orchestrator) gather(ctx context.Context, files []string, raw []memory.Memory, now time.Time) []memory.Scored {
	q := relevance.Query{Files: files, Intent: relevance.IntentContext, Now: now}

	if o.summaries == nil {
		var out []memory.Scored
		for _, s := range relevance.Rank(raw, q) {
			if s.Relevance > minRawRelevance {
				out = append(out, s)
			}
		}
		return top(out, maxCandidates)
	}

	h := o.summaries.Build(ctx, files)
	var out []memory.Scored
	for _, s := range summarizer.Collapse(h.Immediate) {
		out = append(out, pseudoMemory(s, immediatePriority))
	}
	for _, s := range summarizer.Collapse(h.Recent) {
		out = append(out, pseudoMemory(s, recentPriority))
	}
	if len(out) < historicalBelow {
		for _, s := range top(summarizer.Collapse(h.Historical), maxHistorical) {
			out = append(out, pseudoMemory(s, historicalPriority))
		}
	}

	var fresh []memory.Memory
	for _, m := range raw {
		if m.Age(now) < freshCandidateAge {
			fresh = append(fresh, m)
		}
	}
	out = append(out, relevance.Rank(fresh, q)...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Relevance > out[j].Relevance
	})
	return top(out, maxCandidates)
}

// mostRecent picks n of the newest raw candidates, decisions first. It backs
// forced injections that found nothing relevant.
func mostRecent(raw []memory.Memory, files []string, n int, now time.Time) []memory.Scored {
	sorted := append([]memory.Memory(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	sorted = top(sorted, 2*n)

	q := relevance.Query{Files: files, Intent: relevance.IntentContext, Now: now}
	return relevance.ContextMemories(sorted, q, n)
}

func pseudoMemory(s store.Summary, priority float64) memory.Scored {
	return memory.Scored{
		Memory: memory.Memory{
			ID:         fmt.Sprintf("summary_%s_%s", s.SessionID, s.Level),
			Kind:       memory.SessionSummary,
			Content:    s.Text,
			Rationale:  "Session summary from " + s.CreatedAt.Format("15:04"),
			Files:      s.ModifiedFiles,
			Tags:       []string{string(s.Level)},
			SessionID:  s.SessionID,
			Timestamp:  s.CreatedAt,
			Similarity: priority,
		},
		Relevance: priority,
	}
}

func top[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
