package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/app"
	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// seededServer stores mems before the app is wired so the TF-IDF vocabulary
// covers them, then embeds them.
func seededServer(t *testing.T, mems ...memory.Memory) (*Server, *app.App) {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for i := range mems {
		if err := db.SaveMemory(ctx, &mems[i]); err != nil {
			t.Fatalf("SaveMemory: %v", err)
		}
	}

	cfg := config.Default()
	cfg.Embedder.Provider = "tfidf"
	cfg.Retention.Days = 0
	a, err := app.New(ctx, &cfg, db)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	a.VCS = nil
	t.Cleanup(func() { a.Close() })

	if _, err := a.Engine.EmbedMissing(ctx); err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	return New(a, "test-version"), a
}

func sampleMemories() []memory.Memory {
	now := time.Now()
	return []memory.Memory{
		{
			ID:        "wal",
			Kind:      memory.Decision,
			Content:   "Enable SQLite WAL mode for concurrent readers",
			Files:     []string{"internal/store/db.go"},
			Timestamp: now.Add(-10 * time.Minute),
		},
		{
			ID:        "router",
			Kind:      memory.Architecture,
			Content:   "Route HTTP handlers through chi",
			Files:     []string{"internal/server/server.go"},
			Timestamp: now.Add(-20 * time.Minute),
		},
	}
}

func TestGetContextNothingToInject(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "GET", "/api/context?force=true&files=main.go", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["injected"] != false {
		t.Errorf("injected = %v, want false", body["injected"])
	}
	if body["state"] != "suppressed" {
		t.Errorf("state = %v, want suppressed", body["state"])
	}
	if body["reason"] != "no-candidates" {
		t.Errorf("reason = %v, want no-candidates", body["reason"])
	}
}

func TestPostContextForced(t *testing.T) {
	srv, _ := seededServer(t, sampleMemories()...)

	code, body := do(t, srv, "POST", "/api/context",
		`{"session_id":"agent-1","files":["internal/store/db.go"],"force":true}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	if body["injected"] != true {
		t.Fatalf("injected = %v, want true (body %v)", body["injected"], body)
	}
	if body["trigger"] != "force" {
		t.Errorf("trigger = %v, want force", body["trigger"])
	}
	if s, _ := body["context"].(string); s == "" {
		t.Error("expected rendered context")
	}
	metrics, ok := body["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics missing: %v", body)
	}
	if n, _ := metrics["memories_included"].(float64); n < 1 {
		t.Errorf("memories_included = %v", metrics["memories_included"])
	}
}

func TestPostContextInvalidJSON(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "POST", "/api/context", `{nope`)
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
	if body["error"] == nil {
		t.Error("expected error message")
	}
}

func TestHierarchyRequiresFiles(t *testing.T) {
	srv, _ := testServer(t)

	code, _ := do(t, srv, "GET", "/api/hierarchy", "")
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
	code, _ = do(t, srv, "GET", "/api/hierarchy?files=main.go", "")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestSessionFilesAndEnd(t *testing.T) {
	srv, a := testServer(t)

	code, body := do(t, srv, "POST", "/api/sessions/agent-1/files",
		`{"cwd":"/tmp/project","files":["main.go"," ","util.go"]}`)
	if code != http.StatusCreated {
		t.Fatalf("files status = %d, body %v", code, body)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatal("expected a session id")
	}
	if files, _ := body["active_files"].([]any); len(files) != 2 {
		t.Errorf("active_files = %v, want 2 entries", body["active_files"])
	}
	if cur := a.Tracker.Current("/tmp/project"); cur != id {
		t.Errorf("tracked session = %q, want %q", cur, id)
	}

	code, body = do(t, srv, "GET", "/api/sessions", "")
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("list = %d %v, want one session", code, body)
	}

	// The agent's id is unknown to recall; cwd resolves the session.
	code, body = do(t, srv, "POST", "/api/sessions/agent-1/end",
		`{"cwd":"/tmp/project","summary":"wired the api"}`)
	if code != http.StatusOK {
		t.Fatalf("end status = %d", code)
	}
	if body["closed"] != true {
		t.Errorf("closed = %v, want true", body["closed"])
	}

	sess, err := a.DB.GetSession(context.Background(), id)
	if err != nil || sess == nil {
		t.Fatalf("GetSession: %v %v", sess, err)
	}
	if sess.Open() {
		t.Error("session still open after end")
	}
}

func TestSessionFilesRequiresFiles(t *testing.T) {
	srv, _ := testServer(t)

	code, _ := do(t, srv, "POST", "/api/sessions/x/files", `{"cwd":"/tmp","files":[]}`)
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestEndUnknownSession(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "POST", "/api/sessions/nope/end", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["closed"] != false {
		t.Errorf("closed = %v, want false", body["closed"])
	}
}

func TestSessionStats(t *testing.T) {
	srv, _ := testServer(t)
	do(t, srv, "POST", "/api/sessions/a/files", `{"cwd":"/tmp/one","files":["a.go"]}`)
	do(t, srv, "POST", "/api/sessions/b/files", `{"cwd":"/tmp/two","files":["b.go"]}`)

	code, body := do(t, srv, "GET", "/api/sessions/stats?days=1", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["total_sessions"] != float64(2) {
		t.Errorf("total_sessions = %v, want 2", body["total_sessions"])
	}
}

func TestRecordMemory(t *testing.T) {
	srv, a := testServer(t)

	code, body := do(t, srv, "POST", "/api/memories",
		`{"kind":"bug_fix","content":"Close rows before the next query","files":["internal/store/db.go"],"similarity":0.9}`)
	if code != http.StatusCreated {
		t.Fatalf("status = %d, body %v", code, body)
	}
	id, _ := body["id"].(string)
	m, err := a.DB.GetMemory(context.Background(), id)
	if err != nil || m == nil {
		t.Fatalf("GetMemory(%q): %v %v", id, m, err)
	}
	if m.Kind != memory.BugFix {
		t.Errorf("kind = %v, want bug_fix", m.Kind)
	}
	if m.Similarity != 0 {
		t.Errorf("stored similarity = %v, want 0", m.Similarity)
	}
}

func TestRecordMemoryRejects(t *testing.T) {
	srv, _ := testServer(t)

	bodies := []string{
		`{"content":"no kind"}`,
		`{"kind":"opinion","content":"bad kind"}`,
		`{"kind":"todo","content":"  "}`,
		`not json`,
	}
	for _, b := range bodies {
		if code, _ := do(t, srv, "POST", "/api/memories", b); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", b, code)
		}
	}
}

func TestSearch(t *testing.T) {
	srv, _ := seededServer(t, sampleMemories()...)

	code, _ := do(t, srv, "GET", "/api/search", "")
	if code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", code)
	}

	code, body := do(t, srv, "GET", "/api/search?q=sqlite+wal", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v, want one hit", body["results"])
	}
	first, _ := results[0].(map[string]any)
	if first["id"] != "wal" {
		t.Errorf("hit id = %v, want wal", first["id"])
	}
	if sim, _ := first["similarity"].(float64); sim <= 0 {
		t.Errorf("similarity = %v, want > 0", first["similarity"])
	}
}

func TestSearchWithoutEmbedder(t *testing.T) {
	srv, a := testServer(t)
	a.Engine.Searcher = nil

	code, _ := do(t, srv, "GET", "/api/search?q=anything", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestThreads(t *testing.T) {
	srv, _ := testServer(t)
	_, sess := do(t, srv, "POST", "/api/sessions/a/files", `{"cwd":"/tmp/one","files":["a.go"]}`)

	code, _ := do(t, srv, "POST", "/api/threads", `{"theme":"storage"}`)
	if code != http.StatusBadRequest {
		t.Errorf("missing sessions: status = %d, want 400", code)
	}
	code, _ = do(t, srv, "POST", "/api/threads", `{"theme":"storage","session_ids":["ghost"]}`)
	if code != http.StatusNotFound {
		t.Errorf("unknown session: status = %d, want 404", code)
	}

	code, body := do(t, srv, "POST", "/api/threads",
		`{"theme":"storage","session_ids":["`+sess["session_id"].(string)+`"]}`)
	if code != http.StatusCreated {
		t.Fatalf("build: status = %d, body %v", code, body)
	}

	code, body = do(t, srv, "GET", "/api/threads", "")
	if code != http.StatusOK {
		t.Fatalf("list: status = %d", code)
	}
	if threads, _ := body["threads"].([]any); len(threads) != 1 {
		t.Errorf("threads = %v, want one", body["threads"])
	}
}

func TestMessages(t *testing.T) {
	srv, _ := testServer(t)

	code, _ := do(t, srv, "POST", "/api/messages", `{"source":"user","content":""}`)
	if code != http.StatusBadRequest {
		t.Errorf("empty content: status = %d, want 400", code)
	}
	do(t, srv, "POST", "/api/messages", `{"source":"user","content":"fix the flaky test"}`)
	code, body := do(t, srv, "POST", "/api/messages", `{"content":"done"}`)
	if code != http.StatusCreated || body["count"] != float64(2) {
		t.Errorf("add = %d %v", code, body)
	}

	_, body = do(t, srv, "GET", "/api/messages?count=1", "")
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 || msgs[0] != "unknown: done" {
		t.Errorf("messages = %v, want [unknown: done]", body["messages"])
	}
}

func TestMessagesAround(t *testing.T) {
	srv, _ := testServer(t)
	do(t, srv, "POST", "/api/messages", `{"source":"user","content":"rename the flag"}`)

	now := time.Now().UTC().Format(time.RFC3339)
	_, body := do(t, srv, "GET", "/api/messages?around="+now+"&window=1m", "")
	if msgs, _ := body["messages"].([]any); len(msgs) != 1 {
		t.Errorf("messages around now = %v, want one", body["messages"])
	}

	earlier := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	_, body = do(t, srv, "GET", "/api/messages?around="+earlier+"&window=1m", "")
	if msgs, ok := body["messages"].([]any); !ok || len(msgs) != 0 {
		t.Errorf("messages two hours ago = %v, want empty list", body["messages"])
	}

	for _, q := range []string{"around=yesterday", "around=" + now + "&window=soon"} {
		if code, _ := do(t, srv, "GET", "/api/messages?"+q, ""); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, code)
		}
	}
}

func TestGetSession(t *testing.T) {
	srv, _ := testServer(t)
	_, sess := do(t, srv, "POST", "/api/sessions/a/files", `{"cwd":"/tmp/one","files":["a.go","b.go"]}`)
	id := sess["session_id"].(string)

	code, body := do(t, srv, "GET", "/api/sessions/"+id, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	if _, ok := body["session"].(map[string]any); !ok {
		t.Errorf("session = %v", body["session"])
	}
	if q, ok := body["quality"].(float64); !ok || q <= 0 || q > 1 {
		t.Errorf("quality = %v, want a score in (0, 1]", body["quality"])
	}

	code, _ = do(t, srv, "GET", "/api/sessions/ghost", "")
	if code != http.StatusNotFound {
		t.Errorf("unknown session: status = %d, want 404", code)
	}
	code, _ = do(t, srv, "GET", "/api/sessions/stats", "")
	if code != http.StatusOK {
		t.Errorf("stats shadowed by session lookup: status = %d", code)
	}
}

func TestHierarchyView(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "GET", "/api/hierarchy?files=main.go", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, key := range []string{"immediate", "recent", "historical", "historical_digest", "collapsed"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing %q in %v", key, body)
		}
	}
}
