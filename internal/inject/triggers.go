package inject

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/session"
	"github.com/lazypower/recall/internal/store"
)

const (
	fileTriggerAt     = 0.7
	richnessTriggerAt = 0.8
	newFileRatio      = 0.5
)

var significantExts = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".go": true, ".java": true,
}

// significantChange reports whether the working files moved far enough from
// the tracked session to warrant the short cooldown.
func significantChange(wc session.WorkingContext, tracked *store.Session) bool {
	if tracked == nil {
		return false
	}
	trackedSet := memory.FileSet(tracked.ActiveFiles)
	current := memory.FileSet(wc.Files)

	fresh := 0
	for f := range current {
		if _, ok := trackedSet[f]; !ok {
			fresh++
		}
	}
	if float64(fresh)/float64(max(len(current), 1)) > newFileRatio {
		return true
	}

	code := 0
	for _, f := range wc.Files {
		if significantExts[filepath.Ext(f)] {
			code++
		}
	}
	return code > len(trackedSet)
}

// fileScore rewards files that other sessions touched within the last hour.
// The session being recorded, self, does not count.
func (o *Orchestrator) fileScore(ctx context.Context, files []string, self string, now time.Time) float64 {
	var score float64
	for _, f := range files {
		sessions, err := o.db.SessionsWithFile(ctx, f, 1)
		if err != nil {
			slog.Warn("file trigger: reading history failed", "component", "inject", "file", f, "err", err)
			continue
		}
		recent := 0
		for _, s := range sessions {
			if s.ID != self && now.Sub(s.StartTime) < time.Hour {
				recent++
			}
		}
		score += min(float64(recent)*0.3, 1)
	}
	return min(score, 1)
}

// timeScore grows with the gap since the last session other than self. No
// session in the last three days scores 0.7.
func (o *Orchestrator) timeScore(ctx context.Context, self string, now time.Time) float64 {
	recent, err := o.db.RecentSessions(ctx, now.Add(-72*time.Hour), 5)
	if err != nil {
		slog.Warn("time trigger: reading sessions failed", "component", "inject", "err", err)
		return 0
	}
	var last *store.Session
	for i := range recent {
		if recent[i].ID != self {
			last = &recent[i]
			break
		}
	}
	if last == nil {
		return 0.7
	}

	gap := now.Sub(last.LastActivity())
	switch {
	case gap > 8*time.Hour:
		return 0.9
	case gap > 2*time.Hour:
		return 0.6
	case gap > 30*time.Minute:
		return 0.3
	default:
		return 0.1
	}
}

// richness estimates how much context there is worth surfacing.
func (o *Orchestrator) richness(ctx context.Context, wc session.WorkingContext, current *store.Session) float64 {
	score := min(float64(len(wc.Files))/5, 1)*0.3 +
		min(float64(len(wc.Commits))/3, 1)*0.2

	threads, err := o.db.ActiveThreads(ctx, 3)
	if err != nil {
		slog.Warn("richness: reading threads failed", "component", "inject", "err", err)
	}
	score += min(float64(len(threads))/3, 1) * 0.3

	if current != nil {
		score += current.ContinuityScore * 0.2
	}
	return min(score, 1)
}

// additionalTriggers evaluates the non-boundary triggers. When any fires the
// policy observes the highest firing score.
func (o *Orchestrator) additionalTriggers(ctx context.Context, wc session.WorkingContext, current *store.Session, now time.Time) (string, bool) {
	type fired struct {
		name  string
		score float64
	}
	var hits []fired

	self := ""
	if current != nil {
		self = current.ID
	}
	if s := o.fileScore(ctx, wc.Files, self, now); s > fileTriggerAt {
		hits = append(hits, fired{"file_activity", s})
	}
	if s := o.timeScore(ctx, self, now); s > o.policy.Threshold() {
		hits = append(hits, fired{"time_pattern", s})
	}
	if s := o.richness(ctx, wc, current); s > richnessTriggerAt {
		hits = append(hits, fired{"rich_context", s})
	}
	if len(hits) == 0 {
		return "", false
	}

	best := hits[0]
	for _, h := range hits[1:] {
		if h.score > best.score {
			best = h
		}
	}
	o.policy.Observe(best.score)
	return best.name, true
}
