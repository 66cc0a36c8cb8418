// Package app wires the store, engine, session tracking and injection
// orchestrator into one object shared by the HTTP server, the MCP tools and
// the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/inject"
	"github.com/lazypower/recall/internal/session"
	"github.com/lazypower/recall/internal/store"
	"github.com/lazypower/recall/internal/summarizer"
	"github.com/lazypower/recall/internal/watcher"
)

const candidateLimit = 20

// App holds the long-lived components of a recall process.
type App struct {
	Config       *config.Config
	DB           *store.DB
	Engine       *engine.Engine
	Tracker      *session.Tracker
	Detector     *session.Detector
	Summarizer   *summarizer.Summarizer
	Orchestrator *inject.Orchestrator
	Conversation *watcher.Conversation
	VCS          session.VCS

	closers []func() error
}

// Open opens the configured database and wires every component around it.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a, err := New(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return a, nil
}

// New wires the components around an open database. The caller keeps
// ownership of db.
func New(ctx context.Context, cfg *config.Config, db *store.DB) (*App, error) {
	a := &App{
		Config:       cfg,
		DB:           db,
		Engine:       engine.New(db),
		Tracker:      session.NewTracker(db),
		Conversation: watcher.NewConversation(cfg.Watcher.MaxMessages, cfg.Watcher.MaxMessageAge),
		VCS:          session.Git{},
	}

	emb, err := engine.SelectEmbedder(ctx, db, cfg.Embedder.Provider, cfg.Embedder.OllamaURL, cfg.Embedder.Model)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if cfg.Vector.Provider == "qdrant" {
		q, err := engine.NewQdrantSearcher(engine.QdrantConfig{
			Host:       cfg.Vector.QdrantHost,
			Port:       cfg.Vector.QdrantPort,
			Collection: cfg.Vector.Collection,
		}, db, emb)
		if err != nil {
			return nil, err
		}
		a.Engine.SetSearcher(q)
		a.closers = append(a.closers, q.Close)
	}
	a.Engine.SetEmbedder(emb)
	slog.Info("embedder ready", "component", "app", "model", emb.Model(), "vector", cfg.Vector.Provider)

	a.Detector = session.NewDetector(db, session.DetectorConfig{
		MaxSessionDuration:    cfg.Boundary.MaxSessionDuration,
		BoundaryTimeThreshold: cfg.Boundary.BoundaryTimeThreshold,
		ContinuityThreshold:   cfg.Boundary.ContinuityThreshold,
	})
	a.Summarizer = summarizer.New(db, db, cfg.Summarizer.Timeout)
	a.Orchestrator = inject.New(inject.Config{
		MaxTokens:     cfg.Injection.MaxTokens,
		Cooldown:      cfg.Injection.Cooldown,
		ShortCooldown: cfg.Injection.ShortCooldown,
		MinConfidence: cfg.Injection.MinConfidence,
		Timeout:       cfg.Injection.Timeout,
	}, db, a.Detector, a.Tracker, a.Summarizer)

	return a, nil
}

// Close stops background work and releases resources in reverse order of
// acquisition.
func (a *App) Close() error {
	a.Engine.Stop()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ContextRequest describes what the agent is working on.
type ContextRequest struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
	Branch    string   `json:"branch"`
	Cwd       string   `json:"cwd"`
	Force     bool     `json:"force"`
}

// ContextResponse is the outcome of one injection request.
type ContextResponse struct {
	Context   string            `json:"context"`
	Injected  bool              `json:"injected"`
	State     inject.State      `json:"state"`
	Reason    inject.Reason     `json:"reason,omitempty"`
	Trigger   string            `json:"trigger,omitempty"`
	Metrics   *inject.Metrics   `json:"metrics,omitempty"`
	Boundary  *session.Boundary `json:"boundary,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// workingContext fills the branch and recent commits from the repository
// when the caller did not send a branch.
func (a *App) workingContext(ctx context.Context, sessionID, cwd, branch string, files []string) session.WorkingContext {
	wc := session.WorkingContext{
		SessionID:  sessionID,
		Files:      files,
		WorkingDir: cwd,
		Branch:     strings.TrimSpace(branch),
	}
	if wc.Branch == "" && cwd != "" && a.VCS != nil {
		wc.Branch = a.VCS.Branch(ctx, cwd)
		wc.Commits = a.VCS.Commits(ctx, cwd, 5)
	}
	return wc
}

// sessionFiles returns the active files of the session a request without
// files belongs to: id, the session tracked for cwd, or the last one stored
// for cwd.
func (a *App) sessionFiles(ctx context.Context, id, cwd string) []string {
	var s *store.Session
	for _, candidate := range []string{id, a.Tracker.Current(cwd)} {
		if candidate == "" {
			continue
		}
		got, err := a.DB.GetSession(ctx, candidate)
		if err != nil {
			slog.Warn("loading session files failed", "component", "app", "session", candidate, "err", err)
			continue
		}
		if got != nil {
			s = got
			break
		}
	}
	if s == nil && cwd != "" {
		last, err := a.DB.LastSession(ctx, cwd)
		if err != nil {
			slog.Warn("loading last session failed", "component", "app", "cwd", cwd, "err", err)
		}
		s = last
	}
	if s == nil {
		return nil
	}
	return append([]string(nil), s.ActiveFiles...)
}

// Context gathers candidates for the working files and asks the orchestrator
// whether to inject them. A request without files works on the files of its
// session, which is what the session start hook sends.
func (a *App) Context(ctx context.Context, req ContextRequest) ContextResponse {
	files := req.Files
	if len(files) == 0 {
		files = a.sessionFiles(ctx, req.SessionID, req.Cwd)
	}
	wc := a.workingContext(ctx, req.SessionID, req.Cwd, req.Branch, files)
	cands := a.Engine.Candidates(ctx, wc.Files, wc.Branch, candidateLimit)

	res, out := a.Orchestrator.MaybeInject(ctx, wc, cands, req.Force)
	resp := ContextResponse{
		Injected: out.Injected(),
		State:    out.State,
		Reason:   out.Reason,
		Trigger:  out.Trigger,
	}
	if res != nil {
		resp.Context = res.Context
		resp.Metrics = &res.Metrics
		resp.Boundary = &res.Boundary
		resp.SessionID = res.SessionID
	}
	return resp
}

// RecordFiles adds file activity to the session for cwd, starting one when
// none is open. id may be a foreign session id; it is tried first.
func (a *App) RecordFiles(ctx context.Context, id, cwd string, files []string) (*store.Session, error) {
	wc := a.workingContext(ctx, id, cwd, "", files)
	return a.Tracker.TouchOrStart(ctx, wc)
}

// EndSession closes session id, or the session tracked for cwd when id is not
// a recall session.
func (a *App) EndSession(ctx context.Context, id, cwd, summary string) (bool, error) {
	closed, err := a.Tracker.End(ctx, id, summary)
	if err != nil || closed {
		return closed, err
	}
	if cwd == "" {
		return false, nil
	}
	cur := a.Tracker.Current(cwd)
	if cur == "" || cur == id {
		return false, nil
	}
	return a.Tracker.End(ctx, cur, summary)
}
