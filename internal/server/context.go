package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/lazypower/recall/internal/app"
)

// handleGetContext accepts the request as query parameters:
// files is a comma-separated list and force a boolean.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force"))
	req := app.ContextRequest{
		SessionID: q.Get("session_id"),
		Files:     splitList(q.Get("files")),
		Branch:    q.Get("branch"),
		Cwd:       q.Get("cwd"),
		Force:     force,
	}
	writeJSON(w, http.StatusOK, s.app.Context(r.Context(), req))
}

func (s *Server) handlePostContext(w http.ResponseWriter, r *http.Request) {
	var req app.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Files = cleanList(req.Files)
	writeJSON(w, http.StatusOK, s.app.Context(r.Context(), req))
}

// handleHierarchy returns the display view of the summary hierarchy for files.
func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	files := splitList(r.URL.Query().Get("files"))
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "files parameter required")
		return
	}
	writeJSON(w, http.StatusOK, s.app.Summarizer.Build(r.Context(), files).View())
}

// splitList parses a comma-separated parameter.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return cleanList(strings.Split(v, ","))
}

// cleanList trims entries and drops empty ones.
func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
