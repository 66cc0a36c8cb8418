// Package summarizer builds the time-tiered hierarchy of session summaries,
// deduplicates them and compresses old context.
package summarizer

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// Tier windows, measured back from now.
const (
	immediateWindow  = 2 * time.Hour
	recentWindow     = 24 * time.Hour
	historicalWindow = 7 * 24 * time.Hour
)

// Store is the persistence the summarizer reads and caches into.
type Store interface {
	SessionsBetween(ctx context.Context, start, end time.Time, dir string) ([]store.Session, error)
	ListSummaries(ctx context.Context, sessionID string) ([]store.Summary, error)
	UpsertSummary(ctx context.Context, s *store.Summary) error
	UpsertThread(ctx context.Context, t *store.Thread) error
}

// MemoryFeed supplies the decision memories that feed key decisions.
type MemoryFeed interface {
	MemoriesBetween(ctx context.Context, start, end time.Time, kind memory.Kind) ([]memory.Memory, error)
	MemoriesForSession(ctx context.Context, sessionID string) ([]memory.Memory, error)
}

// Hierarchy groups relevant session summaries by age. Partial is set when the
// build was cut short by a deadline or a failed store read.
type Hierarchy struct {
	Immediate  []store.Summary `json:"immediate"`
	Recent     []store.Summary `json:"recent"`
	Historical []store.Summary `json:"historical"`
	Partial    bool            `json:"partial"`
}

// Len returns the total number of summaries across tiers.
func (h Hierarchy) Len() int {
	return len(h.Immediate) + len(h.Recent) + len(h.Historical)
}

// Summarizer builds hierarchies and threads.
type Summarizer struct {
	db      Store
	feed    MemoryFeed
	timeout time.Duration
	now     func() time.Time
}

// New creates a summarizer. A zero timeout leaves the caller's deadline as the
// only bound.
func New(db Store, feed MemoryFeed, timeout time.Duration) *Summarizer {
	return &Summarizer{db: db, feed: feed, timeout: timeout, now: time.Now}
}

type tier struct {
	level    store.Level
	min, max time.Duration // age range (min, max]; immediate includes 0
	dst      *[]store.Summary
}

// Build collects summaries of the sessions that touched any of files, tiered
// by session age. Cached summaries are reused; missing ones are synthesized
// and cached for closed sessions.
func (s *Summarizer) Build(ctx context.Context, files []string) Hierarchy {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var h Hierarchy
	now := s.now()
	want := memory.FileSet(files)
	tiers := []tier{
		{store.LevelImmediate, -1, immediateWindow, &h.Immediate},
		{store.LevelRecent, immediateWindow, recentWindow, &h.Recent},
		{store.LevelHistorical, recentWindow, historicalWindow, &h.Historical},
	}

	for _, t := range tiers {
		if ctx.Err() != nil {
			h.Partial = true
			return h
		}
		sessions, err := s.db.SessionsBetween(ctx, now.Add(-t.max), now, "")
		if err != nil {
			slog.Warn("summarizer: loading sessions failed", "component", "summarizer", "level", t.level, "err", err)
			h.Partial = true
			continue
		}
		for i := range sessions {
			if ctx.Err() != nil {
				h.Partial = true
				return h
			}
			sess := &sessions[i]
			age := now.Sub(sess.StartTime)
			if age <= t.min || age > t.max {
				continue
			}
			if memory.Overlap(sess.ActiveFiles, want) == 0 {
				continue
			}
			sum, ok := s.summaryFor(ctx, sess, t.level)
			if !ok {
				h.Partial = true
				continue
			}
			*t.dst = append(*t.dst, *sum)
		}
	}
	return h
}

// summaryFor returns the cached summary at level or synthesizes one.
func (s *Summarizer) summaryFor(ctx context.Context, sess *store.Session, level store.Level) (*store.Summary, bool) {
	cached, err := s.db.ListSummaries(ctx, sess.ID)
	if err != nil {
		slog.Warn("summarizer: loading summaries failed", "component", "summarizer", "session", sess.ID, "err", err)
		return nil, false
	}
	for i := range cached {
		if cached[i].Level == level {
			return &cached[i], true
		}
	}

	sum := s.Summarize(ctx, sess, level)
	// An open session's summary goes stale as soon as it changes.
	if !sess.Open() {
		if err := s.db.UpsertSummary(ctx, sum); err != nil {
			slog.Warn("summarizer: caching summary failed", "component", "summarizer", "session", sess.ID, "err", err)
		}
	}
	return sum, true
}

// Summarize synthesizes a summary of sess at the given level.
func (s *Summarizer) Summarize(ctx context.Context, sess *store.Session, level store.Level) *store.Summary {
	decisions := s.keyDecisions(ctx, sess)

	var text string
	switch level {
	case store.LevelRecent:
		text = RecentText(ImmediateText(sess, decisions))
	case store.LevelHistorical:
		text = HistoricalText(sess, decisions)
	default:
		text = ImmediateText(sess, decisions)
	}

	return &store.Summary{
		SessionID:     sess.ID,
		Level:         level,
		Text:          text,
		TokenCount:    EstimateTokens(text),
		KeyDecisions:  decisions,
		ModifiedFiles: append([]string(nil), sess.ActiveFiles...),
		CreatedAt:     s.now(),
	}
}

// keyDecisions returns the contents of decision memories recorded under the
// session, or recorded during its window against one of its files.
func (s *Summarizer) keyDecisions(ctx context.Context, sess *store.Session) []string {
	if s.feed == nil {
		return nil
	}

	seen := make(map[string]bool)
	var found []memory.Memory

	own, err := s.feed.MemoriesForSession(ctx, sess.ID)
	if err != nil {
		slog.Warn("summarizer: loading session memories failed", "component", "summarizer", "session", sess.ID, "err", err)
	}
	for _, m := range own {
		if m.Kind == memory.Decision && !seen[m.ID] {
			seen[m.ID] = true
			found = append(found, m)
		}
	}

	end := s.now()
	if sess.EndTime != nil {
		end = *sess.EndTime
	}
	windowed, err := s.feed.MemoriesBetween(ctx, sess.StartTime, end, memory.Decision)
	if err != nil {
		slog.Warn("summarizer: loading window memories failed", "component", "summarizer", "session", sess.ID, "err", err)
	}
	files := memory.FileSet(sess.ActiveFiles)
	for _, m := range windowed {
		if seen[m.ID] || memory.Overlap(m.Files, files) == 0 {
			continue
		}
		seen[m.ID] = true
		found = append(found, m)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Timestamp.Before(found[j].Timestamp)
	})
	decisions := make([]string, len(found))
	for i, m := range found {
		decisions[i] = m.Content
	}
	return decisions
}
