package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/store"
)

func testTracker(t *testing.T) (*Tracker, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTracker(db), db
}

func TestTrackerStart(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()

	s, err := tr.Start(ctx, WorkingContext{Files: []string{"a.go", "b.go"}, WorkingDir: "/p", Branch: "main"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.ID == "" {
		t.Fatal("Start returned empty id")
	}
	if got := tr.Current("/p"); got != s.ID {
		t.Errorf("Current = %q, want %q", got, s.ID)
	}
	if s.FileAccess["a.go"] != 1 {
		t.Errorf("FileAccess[a.go] = %d, want 1", s.FileAccess["a.go"])
	}

	stored, _ := db.GetSession(ctx, s.ID)
	if stored == nil || !stored.Open() {
		t.Fatalf("stored session = %+v, want open session", stored)
	}
}

func TestTrackerStartClosesPrevious(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()

	first, err := tr.Start(ctx, WorkingContext{Files: []string{"a.go"}, WorkingDir: "/p", Branch: "main"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := tr.Start(ctx, WorkingContext{Files: []string{"b.go"}, WorkingDir: "/p", Branch: "main"})
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct session ids")
	}

	prev, _ := db.GetSession(ctx, first.ID)
	if prev.Open() {
		t.Error("previous session still open")
	}
	if got := tr.Current("/p"); got != second.ID {
		t.Errorf("Current = %q, want %q", got, second.ID)
	}
}

func TestTrackerUpdateAndTouch(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	s, _ := tr.Start(ctx, WorkingContext{Files: []string{"a.go"}, WorkingDir: "/p", Branch: "main"})

	updated, err := tr.Update(ctx, s.ID, []string{"a.go", "c.go"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.ActiveFiles) != 2 {
		t.Errorf("ActiveFiles = %v, want [a.go c.go]", updated.ActiveFiles)
	}
	if updated.FileAccess["a.go"] != 2 {
		t.Errorf("FileAccess[a.go] = %d, want 2", updated.FileAccess["a.go"])
	}
	if updated.ContinuityScore != 0.5 {
		t.Errorf("ContinuityScore without prior session = %f, want 0.5", updated.ContinuityScore)
	}

	touched, err := tr.Touch(ctx, s.ID, []string{"d.go"})
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if len(touched.ActiveFiles) != 3 || !touched.HasFile("d.go") {
		t.Errorf("ActiveFiles after Touch = %v", touched.ActiveFiles)
	}

	updated, _ = tr.Update(ctx, s.ID, []string{"z.go"})
	if len(updated.ActiveFiles) != 1 || updated.ActiveFiles[0] != "z.go" {
		t.Errorf("Update did not replace files: %v", updated.ActiveFiles)
	}
}

func TestTrackerUpdateClosedSession(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	s, _ := tr.Start(ctx, WorkingContext{Files: []string{"a.go"}, WorkingDir: "/p", Branch: "main"})
	if ok, err := tr.End(ctx, s.ID, "done"); err != nil || !ok {
		t.Fatalf("End = %v, %v; want true, nil", ok, err)
	}

	if _, err := tr.Update(ctx, s.ID, []string{"b.go"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("Update on closed session err = %v, want ErrNoSession", err)
	}
	if _, err := tr.Update(ctx, "unknown", nil); !errors.Is(err, ErrNoSession) {
		t.Errorf("Update on unknown session err = %v, want ErrNoSession", err)
	}
	if ok, err := tr.End(ctx, s.ID, ""); err != nil || ok {
		t.Errorf("second End = %v, %v; want false, nil", ok, err)
	}
	if got := tr.Current("/p"); got != "" {
		t.Errorf("Current after End = %q, want empty", got)
	}
}

func TestTrackerConcurrentTouch(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	s, _ := tr.Start(ctx, WorkingContext{WorkingDir: "/p", Branch: "main"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := tr.Touch(ctx, s.ID, []string{fmt.Sprintf("f%d.go", i)}); err != nil {
				t.Errorf("Touch %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := db.GetSession(ctx, s.ID)
	if len(got.ActiveFiles) != 10 {
		t.Errorf("ActiveFiles = %d, want 10 (lost update)", len(got.ActiveFiles))
	}
}

func TestContinuityAgainstPrevious(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	now := time.Now()

	prev := &store.Session{
		ID:          "prev",
		StartTime:   now.Add(-time.Hour),
		Branch:      "main",
		WorkingDir:  "/p",
		ActiveFiles: []string{"a.go", "b.go"},
	}
	if err := db.UpsertSession(ctx, prev); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	cur := &store.Session{ID: "cur", StartTime: now, Branch: "main", ActiveFiles: []string{"a.go", "b.go"}}
	// 1.0*0.5 + (1 - 1h/4h)*0.3 + 1.0*0.2
	want := 0.5 + 0.225 + 0.2
	if got := tr.Continuity(ctx, cur); math.Abs(got-want) > 0.01 {
		t.Errorf("Continuity = %f, want ~%f", got, want)
	}

	cur.Branch = "other"
	want = 0.5 + 0.225 + 0.06
	if got := tr.Continuity(ctx, cur); math.Abs(got-want) > 0.01 {
		t.Errorf("Continuity across branches = %f, want ~%f", got, want)
	}
}

func TestSessionContinuityScore(t *testing.T) {
	tests := []struct {
		name string
		s    store.Session
		want float64
	}{
		{"empty", store.Session{}, 0},
		{
			name: "sweet spot",
			s: store.Session{
				ActiveFiles:   []string{"a", "b", "c", "d", "e"},
				TotalDuration: 90 * time.Minute,
				FileAccess:    map[string]int{"a": 2, "b": 2},
			},
			want: 0.15 + 0.4 + 0.3,
		},
		{"too long", store.Session{TotalDuration: 5 * time.Hour}, 0.1},
		{
			name: "uneven access",
			s:    store.Session{FileAccess: map[string]int{"a": 1, "b": 5}},
			// avg 3, variance 4: 1/(1+4/3)*0.3
			want: 0.3 / (1 + 4.0/3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := continuityScore(&tt.s); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("continuityScore = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestSessionContinuityScoreUnknown(t *testing.T) {
	tr, _ := testTracker(t)

	got, err := tr.SessionContinuityScore(context.Background(), "missing")
	if err != nil {
		t.Fatalf("SessionContinuityScore: %v", err)
	}
	if got != 0 {
		t.Errorf("score = %f, want 0", got)
	}
}

func TestGitFallback(t *testing.T) {
	g := Git{Timeout: 2 * time.Second}
	dir := t.TempDir()

	if got := g.Branch(context.Background(), dir); got != DefaultBranch {
		t.Errorf("Branch outside a repo = %q, want %q", got, DefaultBranch)
	}
	if got := g.Commits(context.Background(), dir, 5); len(got) != 0 {
		t.Errorf("Commits outside a repo = %v, want none", got)
	}
	if got := g.Commits(context.Background(), dir, 0); got != nil {
		t.Errorf("Commits(0) = %v, want nil", got)
	}
}

func TestTrackerOrStart(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()

	// Unknown ids fall through to a new session.
	first, err := tr.UpdateOrStart(ctx, WorkingContext{SessionID: "agent-123", Files: []string{"a.go"}, WorkingDir: "/p"})
	if err != nil {
		t.Fatalf("UpdateOrStart: %v", err)
	}
	if first.ID == "agent-123" {
		t.Error("tracker adopted a foreign session id")
	}

	// The tracked session for the directory is reused.
	touched, err := tr.TouchOrStart(ctx, WorkingContext{SessionID: "agent-123", Files: []string{"b.go"}, WorkingDir: "/p"})
	if err != nil {
		t.Fatalf("TouchOrStart: %v", err)
	}
	if touched.ID != first.ID {
		t.Errorf("TouchOrStart session = %q, want %q", touched.ID, first.ID)
	}
	if len(touched.ActiveFiles) != 2 {
		t.Errorf("ActiveFiles = %v, want a.go and b.go", touched.ActiveFiles)
	}

	// A fresh tracker picks up an open session through the extra ids.
	fresh := NewTracker(db)
	updated, err := fresh.UpdateOrStart(ctx, WorkingContext{Files: []string{"c.go"}, WorkingDir: "/p"}, first.ID)
	if err != nil {
		t.Fatalf("UpdateOrStart extra: %v", err)
	}
	if updated.ID != first.ID {
		t.Errorf("session = %q, want %q", updated.ID, first.ID)
	}
	if len(updated.ActiveFiles) != 1 || updated.ActiveFiles[0] != "c.go" {
		t.Errorf("ActiveFiles = %v, want [c.go]", updated.ActiveFiles)
	}
	if fresh.Current("/p") != first.ID {
		t.Errorf("Current = %q, want %q", fresh.Current("/p"), first.ID)
	}
}

func TestTrackerUpdateEmptyKeepsFiles(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	s, _ := tr.Start(ctx, WorkingContext{Files: []string{"a.go", "b.go"}, WorkingDir: "/p"})
	updated, err := tr.Update(ctx, s.ID, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.ActiveFiles) != 2 {
		t.Errorf("ActiveFiles = %v, want a.go and b.go kept", updated.ActiveFiles)
	}
	if updated.FileAccess["a.go"] != 1 {
		t.Errorf("FileAccess[a.go] = %d, want 1", updated.FileAccess["a.go"])
	}
}

func TestFileAccessSurvivesNewTracker(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()

	s, _ := tr.Start(ctx, WorkingContext{Files: []string{"a.go"}, WorkingDir: "/p"})
	tr.Touch(ctx, s.ID, []string{"a.go"})
	tr.Touch(ctx, s.ID, []string{"a.go"})

	restarted := NewTracker(db)
	updated, err := restarted.Update(ctx, s.ID, []string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.FileAccess["a.go"] != 4 || updated.FileAccess["b.go"] != 1 {
		t.Errorf("FileAccess = %v, want a.go:4 b.go:1", updated.FileAccess)
	}

	stored, _ := db.GetSession(ctx, s.ID)
	if stored.FileAccess["a.go"] != 4 {
		t.Errorf("stored FileAccess = %v", stored.FileAccess)
	}
}

func TestStartClosesSessionLeftOpenByAnotherTracker(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()

	first, _ := tr.Start(ctx, WorkingContext{Files: []string{"a.go"}, WorkingDir: "/p", Branch: "main"})
	other, _ := tr.Start(ctx, WorkingContext{Files: []string{"x.go"}, WorkingDir: "/q", Branch: "main"})

	second, err := NewTracker(db).Start(ctx, WorkingContext{Files: []string{"b.go"}, WorkingDir: "/p", Branch: "dev"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, _ := db.GetSession(ctx, first.ID)
	if got.Open() {
		t.Error("session left open by the first tracker was not closed")
	}
	if s, _ := db.GetSession(ctx, second.ID); !s.Open() {
		t.Error("new session should be open")
	}
	if s, _ := db.GetSession(ctx, other.ID); !s.Open() {
		t.Error("session in another directory should stay open")
	}
}

func TestOrStartResumesStoredOpenSession(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()

	first, _ := tr.Start(ctx, WorkingContext{Files: []string{"a.go"}, WorkingDir: "/p"})

	touched, err := NewTracker(db).TouchOrStart(ctx, WorkingContext{SessionID: "agent-1", Files: []string{"b.go"}, WorkingDir: "/p"})
	if err != nil {
		t.Fatalf("TouchOrStart: %v", err)
	}
	if touched.ID != first.ID {
		t.Errorf("session = %q, want resumed %q", touched.ID, first.ID)
	}
	if len(touched.ActiveFiles) != 2 {
		t.Errorf("ActiveFiles = %v", touched.ActiveFiles)
	}
}
