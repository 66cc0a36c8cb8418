package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", 7)
	limit := intParam(r, "limit", 20)

	since := time.Now().AddDate(0, 0, -days)
	sessions, err := s.app.DB.RecentSessions(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", 7)
	stats, err := s.app.DB.Stats(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetSession returns one session with its standalone quality score.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.app.DB.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	quality, err := s.app.Tracker.SessionContinuityScore(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"quality": quality,
	})
}

func (s *Server) handleSessionFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Cwd   string   `json:"cwd"`
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	files := cleanList(req.Files)
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "files required")
		return
	}

	sess, err := s.app.RecordFiles(r.Context(), sessionID, req.Cwd, files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":   sess.ID,
		"active_files": sess.ActiveFiles,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// The body is optional.
	var req struct {
		Cwd     string `json:"cwd"`
		Summary string `json:"summary"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	closed, err := s.app.EndSession(r.Context(), sessionID, req.Cwd, req.Summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ended", "closed": closed})
}

func (s *Server) handleRecordMemory(w http.ResponseWriter, r *http.Request) {
	var m memory.Memory
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if m.Kind == memory.KindUnknown {
		writeError(w, http.StatusBadRequest, "kind required")
		return
	}
	// Similarity is assigned by search, never by the producer.
	m.Similarity = 0

	if err := s.app.Engine.RecordMemory(r.Context(), &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": m.ID})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	limit := intParam(r, "limit", 10)

	results, err := s.app.Engine.Search(r.Context(), query, limit)
	if errors.Is(err, engine.ErrNoEmbedder) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		slog.Warn("search failed", "component", "server", "query", query, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []memory.Memory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.app.DB.ActiveThreads(r.Context(), intParam(r, "limit", 10))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []store.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleBuildThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme      string   `json:"theme"`
		SessionIDs []string `json:"session_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Theme == "" || len(req.SessionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "theme and session_ids required")
		return
	}

	var sessions []store.Session
	for _, id := range req.SessionIDs {
		sess, err := s.app.DB.GetSession(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sess == nil {
			writeError(w, http.StatusNotFound, "session "+id+" not found")
			return
		}
		sessions = append(sessions, *sess)
	}

	thread, err := s.app.Summarizer.BuildThread(r.Context(), req.Theme, sessions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source    string   `json:"source"`
		Content   string   `json:"content"`
		ToolCalls []string `json:"tool_calls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	s.app.Conversation.Add(req.Source, req.Content, req.ToolCalls...)
	writeJSON(w, http.StatusCreated, map[string]int{"count": s.app.Conversation.Len()})
}

// handleListMessages returns the last count messages, or with around (RFC
// 3339) the messages within window (default 10m) of that instant.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("around") == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": s.app.Conversation.Recent(intParam(r, "count", 0)),
		})
		return
	}

	at, err := time.Parse(time.RFC3339, q.Get("around"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "around must be an RFC 3339 time")
		return
	}
	window := 10 * time.Minute
	if v := q.Get("window"); v != "" {
		if window, err = time.ParseDuration(v); err != nil || window < 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
	}
	msgs := s.app.Conversation.Around(at, window)
	if msgs == nil {
		msgs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
