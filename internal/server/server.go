package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/recall/internal/app"
)

// Server is the recall HTTP API server.
type Server struct {
	app     *app.App
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server around the wired application.
func New(a *app.App, version string) *Server {
	s := &Server{
		app:     a,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/context", s.handleGetContext)
		r.Post("/context", s.handlePostContext)
		r.Get("/hierarchy", s.handleHierarchy)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/stats", s.handleSessionStats)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Post("/sessions/{sessionID}/files", s.handleSessionFiles)
		r.Post("/sessions/{sessionID}/end", s.handleEndSession)

		r.Post("/memories", s.handleRecordMemory)
		r.Get("/search", s.handleSearch)

		r.Get("/threads", s.handleListThreads)
		r.Post("/threads", s.handleBuildThread)

		r.Get("/messages", s.handleListMessages)
		r.Post("/messages", s.handleAddMessage)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.app.DB.PingContext(r.Context()) == nil

	embedder := ""
	if s.app.Engine.Embedder != nil {
		embedder = s.app.Engine.Embedder.Model()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"uptime":    time.Since(s.started).Seconds(),
		"db":        dbOK,
		"db_path":   s.app.DB.Path,
		"embedder":  embedder,
		"threshold": s.app.Orchestrator.Threshold(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
