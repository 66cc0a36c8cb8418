package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// ErrNoSession is returned when an operation names an unknown or closed session.
var ErrNoSession = errors.New("no such open session")

// Store is what the tracker needs from persistence.
type Store interface {
	SessionSource
	UpsertSession(ctx context.Context, s *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	CloseSession(ctx context.Context, id, summary string, at time.Time) (bool, error)
	RecentSessions(ctx context.Context, since time.Time, limit int) ([]store.Session, error)
}

// WorkingContext is a snapshot of what the agent is working on.
type WorkingContext struct {
	SessionID  string   `json:"session_id,omitempty"`
	Files      []string `json:"files"`
	WorkingDir string   `json:"cwd"`
	Branch     string   `json:"branch"`
	Commits    []string `json:"commits,omitempty"`
}

// Tracker owns the current session per working directory.
type Tracker struct {
	db    Store
	locks keyedMutex
	now   func() time.Time

	mu      sync.Mutex
	current map[string]string // working dir -> session id
}

// NewTracker creates a tracker persisting to db.
func NewTracker(db Store) *Tracker {
	return &Tracker{
		db:      db,
		now:     time.Now,
		current: make(map[string]string),
	}
}

// Current returns the id of the session tracked for dir, or "".
func (t *Tracker) Current(dir string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current[dir]
}

// lastOpen returns the id of the newest session recorded for dir when it is
// still open. It finds sessions left open by another process.
func (t *Tracker) lastOpen(ctx context.Context, dir string) string {
	if dir == "" {
		return ""
	}
	last, err := t.db.LastSession(ctx, dir)
	if err != nil {
		slog.Warn("reading last session failed", "component", "session", "dir", dir, "err", err)
		return ""
	}
	if last == nil || !last.Open() {
		return ""
	}
	return last.ID
}

// Start closes the previous open session for the working directory and opens
// a new one.
func (t *Tracker) Start(ctx context.Context, wc WorkingContext) (*store.Session, error) {
	prev := t.Current(wc.WorkingDir)
	if prev == "" {
		prev = t.lastOpen(ctx, wc.WorkingDir)
	}
	if prev != "" {
		if _, err := t.End(ctx, prev, ""); err != nil {
			slog.Warn("closing previous session failed", "component", "session", "session", prev, "err", err)
		}
	}

	s := &store.Session{
		ID:          uuid.NewString(),
		StartTime:   t.now(),
		Branch:      wc.Branch,
		WorkingDir:  wc.WorkingDir,
		ActiveFiles: append([]string(nil), wc.Files...),
		Commits:     append([]string(nil), wc.Commits...),
	}
	bump(s, wc.Files)

	if err := t.db.UpsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	t.mu.Lock()
	t.current[wc.WorkingDir] = s.ID
	t.mu.Unlock()

	slog.Info("started session", "component", "session", "session", s.ID, "files", len(s.ActiveFiles))
	return s, nil
}

// Update replaces the session's active files, bumps access counters and
// recomputes continuity. An empty files list keeps the current set.
func (t *Tracker) Update(ctx context.Context, id string, files []string) (*store.Session, error) {
	return t.modify(ctx, id, func(s *store.Session) {
		if len(files) > 0 {
			s.ActiveFiles = append([]string(nil), files...)
		}
		bump(s, files)
	})
}

// Touch adds files to the session's active set without dropping the
// existing ones. Tool-use activity arrives one file at a time through here.
func (t *Tracker) Touch(ctx context.Context, id string, files []string) (*store.Session, error) {
	return t.modify(ctx, id, func(s *store.Session) {
		for _, f := range files {
			if !s.HasFile(f) {
				s.ActiveFiles = append(s.ActiveFiles, f)
			}
		}
		bump(s, files)
	})
}

// UpdateOrStart replaces the active files of the open session matching wc
// and starts a new session when none matches. Candidate ids are tried in
// order: wc.SessionID, the session tracked for wc.WorkingDir, extra, then the
// newest open session stored for wc.WorkingDir.
func (t *Tracker) UpdateOrStart(ctx context.Context, wc WorkingContext, extra ...string) (*store.Session, error) {
	return t.orStart(ctx, wc, t.Update, extra)
}

// TouchOrStart is UpdateOrStart with Touch semantics: files are added to the
// active set instead of replacing it.
func (t *Tracker) TouchOrStart(ctx context.Context, wc WorkingContext, extra ...string) (*store.Session, error) {
	return t.orStart(ctx, wc, t.Touch, extra)
}

type modifyFunc func(ctx context.Context, id string, files []string) (*store.Session, error)

func (t *Tracker) orStart(ctx context.Context, wc WorkingContext, fn modifyFunc, extra []string) (*store.Session, error) {
	ids := append([]string{wc.SessionID, t.Current(wc.WorkingDir)}, extra...)
	ids = append(ids, t.lastOpen(ctx, wc.WorkingDir))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		s, err := fn(ctx, id, wc.Files)
		if err == nil {
			t.mu.Lock()
			t.current[wc.WorkingDir] = id
			t.mu.Unlock()
			return s, nil
		}
		if !errors.Is(err, ErrNoSession) {
			return nil, err
		}
	}
	return t.Start(ctx, wc)
}

func (t *Tracker) modify(ctx context.Context, id string, apply func(*store.Session)) (*store.Session, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	s, err := t.db.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil || !s.Open() {
		return nil, fmt.Errorf("update session %s: %w", id, ErrNoSession)
	}

	apply(s)
	s.ContinuityScore = t.Continuity(ctx, s)

	if err := t.db.UpsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return s, nil
}

// End closes a session with an optional summary. It returns false when the
// session was already closed or unknown.
func (t *Tracker) End(ctx context.Context, id, summary string) (bool, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	closed, err := t.db.CloseSession(ctx, id, summary, t.now())
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	for dir, cur := range t.current {
		if cur == id {
			delete(t.current, dir)
		}
	}
	t.mu.Unlock()

	if closed {
		slog.Info("ended session", "component", "session", "session", id)
	}
	return closed, nil
}

// bump increments the persisted access counters of files. Counts carry over
// from whatever process recorded them before.
func bump(s *store.Session, files []string) {
	if len(files) == 0 {
		return
	}
	if s.FileAccess == nil {
		s.FileAccess = make(map[string]int, len(files))
	}
	for _, f := range files {
		s.FileAccess[f]++
	}
}

// Continuity compares a session with the most recent other session from the
// last 48 hours: 0.5 file overlap, 0.3 time proximity, 0.2 branch match.
// Without a previous session it is 0.5.
func (t *Tracker) Continuity(ctx context.Context, s *store.Session) float64 {
	now := t.now()
	recent, err := t.db.RecentSessions(ctx, now.Add(-48*time.Hour), 5)
	if err != nil {
		slog.Warn("continuity: reading recent sessions failed", "component", "session", "err", err)
		return 0.5
	}

	var prev *store.Session
	for i := range recent {
		if recent[i].ID != s.ID {
			prev = &recent[i]
			break
		}
	}
	if prev == nil {
		return 0.5
	}

	files := FileContinuity(s.ActiveFiles, prev.ActiveFiles)
	gap := now.Sub(prev.LastActivity())
	timeScore := math.Max(0, 1-gap.Hours()/4)
	branch := 0.3
	if s.Branch == prev.Branch {
		branch = 1.0
	}
	return memory.Clamp01(files*0.5 + timeScore*0.3 + branch*0.2)
}

// SessionContinuityScore rates a stored session on its own: how many files it
// touched, whether its length sits near the 1.5 hour sweet spot, and how evenly
// its files were accessed. Unknown sessions score 0.
func (t *Tracker) SessionContinuityScore(ctx context.Context, id string) (float64, error) {
	s, err := t.db.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	if s == nil {
		return 0, nil
	}
	return continuityScore(s), nil
}

func continuityScore(s *store.Session) float64 {
	var score float64

	if n := len(s.ActiveFiles); n > 0 {
		score += math.Min(float64(n)/10, 1) * 0.3
	}

	if s.TotalDuration > 0 {
		hours := s.TotalDuration.Hours()
		if hours >= 0.5 && hours <= 3 {
			score += (1 - math.Abs(hours-1.5)/1.5) * 0.4
		} else {
			score += 0.1
		}
	}

	if len(s.FileAccess) > 0 {
		var sum float64
		for _, c := range s.FileAccess {
			sum += float64(c)
		}
		avg := sum / float64(len(s.FileAccess))
		var variance float64
		for _, c := range s.FileAccess {
			d := float64(c) - avg
			variance += d * d
		}
		variance /= float64(len(s.FileAccess))
		score += 1 / (1 + variance/math.Max(avg, 1)) * 0.3
	}

	return math.Min(score, 1)
}
