package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/store"
)

// ErrNoSessions is returned when a thread is requested without sessions.
var ErrNoSessions = errors.New("cannot build a thread without sessions")

const dormantAfter = 7 * 24 * time.Hour

// threadNamespace scopes thread ids so one theme always maps to one thread.
var threadNamespace = uuid.MustParse("5b0b3c55-8f43-4f0e-9a55-2f1f3f0c9d1a")

// ThreadID derives the stable id of the thread for a theme.
func ThreadID(theme string) string {
	return uuid.NewSHA1(threadNamespace, []byte(strings.ToLower(strings.TrimSpace(theme)))).String()
}

// BuildThread links sessions under a theme, gathers their decisions, infers
// the thread status and persists it.
func (s *Summarizer) BuildThread(ctx context.Context, theme string, sessions []store.Session) (*store.Thread, error) {
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}

	ids := make([]string, len(sessions))
	var decisions []string
	latest := &sessions[0]
	for i := range sessions {
		ids[i] = sessions[i].ID
		decisions = append(decisions, s.keyDecisions(ctx, &sessions[i])...)
		if sessions[i].StartTime.After(latest.StartTime) {
			latest = &sessions[i]
		}
	}

	now := s.now()
	t := &store.Thread{
		ID:           ThreadID(theme),
		Theme:        theme,
		SessionIDs:   ids,
		KeyDecisions: decisions,
		Status:       threadStatus(latest, decisions, now),
		UpdatedAt:    now,
	}
	if err := s.db.UpsertThread(ctx, t); err != nil {
		return nil, fmt.Errorf("build thread: %w", err)
	}
	return t, nil
}

func threadStatus(latest *store.Session, decisions []string, now time.Time) store.ThreadStatus {
	if latest.Open() {
		return store.ThreadInProgress
	}
	if now.Sub(latest.StartTime) > dormantAfter {
		return store.ThreadDormant
	}
	text := strings.ToLower(strings.Join(decisions, " "))
	if containsAny(text, "complete", "finished", "done", "shipped") {
		return store.ThreadCompleted
	}
	if containsAny(text, "blocked", "waiting", "pending") {
		return store.ThreadBlocked
	}
	return store.ThreadActive
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
