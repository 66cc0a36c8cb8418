package summarizer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSummarizer(db *store.DB, now time.Time) *Summarizer {
	s := New(db, db, 0)
	s.now = func() time.Time { return now }
	return s
}

func putSession(t *testing.T, db *store.DB, id string, start time.Time, dur time.Duration, files ...string) {
	t.Helper()
	s := &store.Session{
		ID:          id,
		StartTime:   start,
		Branch:      "main",
		WorkingDir:  "/work/project",
		ActiveFiles: files,
	}
	if dur > 0 {
		end := start.Add(dur)
		s.EndTime = &end
	}
	if err := db.UpsertSession(context.Background(), s); err != nil {
		t.Fatalf("UpsertSession(%s): %v", id, err)
	}
}

func putDecision(t *testing.T, db *store.DB, id, sessionID, content string, at time.Time, files ...string) {
	t.Helper()
	m := &memory.Memory{
		ID:        id,
		Kind:      memory.Decision,
		Content:   content,
		Files:     files,
		SessionID: sessionID,
		Timestamp: at,
	}
	if err := db.SaveMemory(context.Background(), m); err != nil {
		t.Fatalf("SaveMemory(%s): %v", id, err)
	}
}

func sessionIDs(summaries []store.Summary) []string {
	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.SessionID)
	}
	return ids
}

func TestBuildTiers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	putSession(t, db, "s1", now.Add(-time.Hour), 30*time.Minute, "a.go")
	putSession(t, db, "s6", now.Add(-30*time.Minute), 0, "a.go", "x.go")
	putSession(t, db, "s2", now.Add(-5*time.Hour), time.Hour, "a.go", "b.go")
	putSession(t, db, "s3", now.Add(-72*time.Hour), time.Hour, "a.go")
	putSession(t, db, "s4", now.Add(-time.Hour), time.Hour, "z.go")
	putSession(t, db, "s5", now.Add(-10*24*time.Hour), time.Hour, "a.go")

	putDecision(t, db, "m1", "s1", "use chi", now.Add(-50*time.Minute), "a.go")
	putDecision(t, db, "m2", "", "split routes", now.Add(-270*time.Minute), "b.go")
	putDecision(t, db, "m3", "", "unrelated", now.Add(-270*time.Minute), "z.go")

	h := testSummarizer(db, now).Build(ctx, []string{"a.go"})

	if h.Partial {
		t.Error("Partial = true, want false")
	}
	if got := sessionIDs(h.Immediate); !reflect.DeepEqual(got, []string{"s6", "s1"}) {
		t.Errorf("Immediate = %v, want [s6 s1]", got)
	}
	if got := sessionIDs(h.Recent); !reflect.DeepEqual(got, []string{"s2"}) {
		t.Errorf("Recent = %v, want [s2]", got)
	}
	if got := sessionIDs(h.Historical); !reflect.DeepEqual(got, []string{"s3"}) {
		t.Errorf("Historical = %v, want [s3]", got)
	}
	if h.Len() != 4 {
		t.Errorf("Len = %d, want 4", h.Len())
	}

	if len(h.Immediate) == 2 && !strings.Contains(h.Immediate[1].Text, "- use chi") {
		t.Errorf("s1 summary missing its decision:\n%s", h.Immediate[1].Text)
	}
	if len(h.Recent) == 1 {
		r := h.Recent[0]
		if !reflect.DeepEqual(r.KeyDecisions, []string{"split routes"}) {
			t.Errorf("s2 decisions = %v, want [split routes]", r.KeyDecisions)
		}
		if r.Level != store.LevelRecent || !strings.HasPrefix(r.Text, "Session: ") {
			t.Errorf("s2 summary = %+v, want recent level text", r)
		}
	}
}

func TestBuildCachesClosedSessionsOnly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	putSession(t, db, "closed", now.Add(-time.Hour), 30*time.Minute, "a.go")
	putSession(t, db, "open", now.Add(-20*time.Minute), 0, "a.go")

	testSummarizer(db, now).Build(ctx, []string{"a.go"})

	cached, err := db.GetSummary(ctx, "closed", store.LevelImmediate)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if cached == nil {
		t.Error("closed session summary was not cached")
	}
	open, err := db.GetSummary(ctx, "open", store.LevelImmediate)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if open != nil {
		t.Error("open session summary was cached")
	}
}

func TestBuildReusesCachedSummary(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	putSession(t, db, "s2", now.Add(-5*time.Hour), time.Hour, "a.go")
	err := db.UpsertSummary(ctx, &store.Summary{
		SessionID: "s2",
		Level:     store.LevelRecent,
		Text:      "cached text",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}

	h := testSummarizer(db, now).Build(ctx, []string{"a.go"})
	if len(h.Recent) != 1 || h.Recent[0].Text != "cached text" {
		t.Errorf("Recent = %+v, want the cached summary", h.Recent)
	}
}

func TestBuildCancelled(t *testing.T) {
	db := testDB(t)
	now := time.Now().Truncate(time.Millisecond)
	putSession(t, db, "s1", now.Add(-time.Hour), 30*time.Minute, "a.go")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := testSummarizer(db, now).Build(ctx, []string{"a.go"})
	if !h.Partial {
		t.Error("Partial = false, want true")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

type failingStore struct{}

func (failingStore) SessionsBetween(context.Context, time.Time, time.Time, string) ([]store.Session, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) ListSummaries(context.Context, string) ([]store.Summary, error) {
	return nil, nil
}

func (failingStore) UpsertSummary(context.Context, *store.Summary) error { return nil }

func (failingStore) UpsertThread(context.Context, *store.Thread) error {
	return errors.New("disk on fire")
}

func TestBuildStoreFailure(t *testing.T) {
	s := New(failingStore{}, nil, time.Second)

	h := s.Build(context.Background(), []string{"a.go"})
	if !h.Partial {
		t.Error("Partial = false, want true")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

func TestBuildThread(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	putSession(t, db, "s1", now.Add(-3*time.Hour), time.Hour, "router.go")
	putSession(t, db, "s2", now.Add(-time.Hour), 30*time.Minute, "router.go")
	putDecision(t, db, "m1", "s1", "use chi for routing", now.Add(-150*time.Minute), "router.go")
	putDecision(t, db, "m2", "s2", "shipped the router", now.Add(-45*time.Minute), "router.go")

	first, _ := db.GetSession(ctx, "s1")
	second, _ := db.GetSession(ctx, "s2")
	s := testSummarizer(db, now)

	th, err := s.BuildThread(ctx, "Routing", []store.Session{*first, *second})
	if err != nil {
		t.Fatalf("BuildThread: %v", err)
	}
	if th.Status != store.ThreadCompleted {
		t.Errorf("Status = %q, want completed", th.Status)
	}
	if !reflect.DeepEqual(th.SessionIDs, []string{"s1", "s2"}) {
		t.Errorf("SessionIDs = %v", th.SessionIDs)
	}
	if !reflect.DeepEqual(th.KeyDecisions, []string{"use chi for routing", "shipped the router"}) {
		t.Errorf("KeyDecisions = %v", th.KeyDecisions)
	}

	got, err := db.GetThread(ctx, ThreadID("routing "))
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got == nil || got.Theme != "Routing" {
		t.Errorf("persisted thread = %+v, want theme Routing", got)
	}
}

func TestBuildThreadErrors(t *testing.T) {
	s := New(failingStore{}, nil, 0)

	if _, err := s.BuildThread(context.Background(), "x", nil); !errors.Is(err, ErrNoSessions) {
		t.Errorf("err = %v, want ErrNoSessions", err)
	}

	sessions := []store.Session{{ID: "s1", StartTime: time.Now()}}
	if _, err := s.BuildThread(context.Background(), "x", sessions); err == nil {
		t.Error("expected error from failing store")
	}
}

func TestThreadStatus(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Hour)
	closed := func(start time.Time) *store.Session {
		return &store.Session{StartTime: start, EndTime: &ended}
	}

	tests := []struct {
		name      string
		latest    *store.Session
		decisions []string
		want      store.ThreadStatus
	}{
		{"open session", &store.Session{StartTime: now.Add(-time.Hour)}, []string{"done"}, store.ThreadInProgress},
		{"old session", closed(now.Add(-8 * 24 * time.Hour)), []string{"done"}, store.ThreadDormant},
		{"finished", closed(now.Add(-2 * time.Hour)), []string{"Feature COMPLETE"}, store.ThreadCompleted},
		{"waiting", closed(now.Add(-2 * time.Hour)), []string{"waiting on review"}, store.ThreadBlocked},
		{"plain", closed(now.Add(-2 * time.Hour)), []string{"use chi"}, store.ThreadActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := threadStatus(tt.latest, tt.decisions, now); got != tt.want {
				t.Errorf("threadStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestThreadIDStable(t *testing.T) {
	if ThreadID("Auth Refactor") != ThreadID("  auth refactor") {
		t.Error("ThreadID differs for the same theme")
	}
	if ThreadID("auth") == ThreadID("billing") {
		t.Error("ThreadID collides for different themes")
	}
}

func TestViewCollapsesSynthesizedHistorical(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	putSession(t, db, "h1", now.Add(-72*time.Hour), time.Hour, "x.py", "y.py")
	putSession(t, db, "h2", now.Add(-96*time.Hour), 2*time.Hour, "y.py", "x.py")
	putSession(t, db, "h3", now.Add(-120*time.Hour), time.Hour, "x.py", "z.py", "w.py")

	h := testSummarizer(db, now).Build(ctx, []string{"x.py"})
	if len(h.Historical) != 3 {
		t.Fatalf("historical = %v, want three sessions", sessionIDs(h.Historical))
	}
	groups := DuplicateGroups(h.Historical)
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("groups = %v, want one pair", groups)
	}

	v := h.View()
	if v.Collapsed != 1 {
		t.Errorf("Collapsed = %d, want 1", v.Collapsed)
	}
	if len(v.Historical) != 2 {
		t.Errorf("historical view = %v, want the pair collapsed", sessionIDs(v.Historical))
	}
	if v.Digest.Text == "" || v.Digest.Ratio <= 0 {
		t.Errorf("Digest = %+v", v.Digest)
	}
	if v.Immediate == nil || v.Recent == nil {
		t.Error("empty tiers should encode as empty lists")
	}
}
