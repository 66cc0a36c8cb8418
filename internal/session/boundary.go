// Package session detects working-session boundaries and tracks the current
// session for each working directory.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// BoundaryKind classifies how the current activity relates to the last session.
type BoundaryKind string

const (
	NewSession      BoundaryKind = "new_session"
	Continuation    BoundaryKind = "continuation"
	BranchSwitch    BoundaryKind = "branch_switch"
	DirectoryChange BoundaryKind = "directory_change"
	LongGap         BoundaryKind = "long_gap"
)

// Boundary is the outcome of a detection.
type Boundary struct {
	Kind              BoundaryKind `json:"kind"`
	Confidence        float64      `json:"confidence"`
	Reasons           []string     `json:"reasons"`
	PreviousSessionID string       `json:"previous_session_id,omitempty"`
	Inject            bool         `json:"inject"`
}

// SessionSource is the slice of the store the detector reads.
type SessionSource interface {
	LastSession(ctx context.Context, dir string) (*store.Session, error)
}

// DetectorConfig holds the boundary thresholds.
type DetectorConfig struct {
	MaxSessionDuration    time.Duration
	BoundaryTimeThreshold time.Duration
	ContinuityThreshold   float64
}

// DefaultDetectorConfig returns the stock thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxSessionDuration:    4 * time.Hour,
		BoundaryTimeThreshold: 30 * time.Minute,
		ContinuityThreshold:   0.7,
	}
}

// Detector decides whether current activity starts a new session.
type Detector struct {
	src SessionSource
	cfg DetectorConfig
	now func() time.Time
}

// NewDetector creates a detector reading prior sessions from src.
func NewDetector(src SessionSource, cfg DetectorConfig) *Detector {
	return &Detector{src: src, cfg: cfg, now: time.Now}
}

// Detect compares the current files, directory and branch against the last
// session recorded for dir. The checks run in a fixed order and the first
// decisive one wins. A store failure is logged and treated as no prior session.
func (d *Detector) Detect(ctx context.Context, files []string, dir, branch string) Boundary {
	last, err := d.src.LastSession(ctx, dir)
	if err != nil {
		slog.Warn("boundary detection: reading last session failed", "component", "session", "dir", dir, "err", err)
		last = nil
	}
	if last == nil {
		return Boundary{
			Kind:       NewSession,
			Confidence: 1.0,
			Reasons:    []string{"no previous session found"},
		}
	}

	gap := d.now().Sub(last.LastActivity())
	if gap > d.cfg.MaxSessionDuration {
		return Boundary{
			Kind:              LongGap,
			Confidence:        0.9,
			Reasons:           []string{fmt.Sprintf("long time gap: %s", gap.Round(time.Second))},
			PreviousSessionID: last.ID,
			Inject:            true,
		}
	}
	if branch != last.Branch {
		return Boundary{
			Kind:              BranchSwitch,
			Confidence:        0.8,
			Reasons:           []string{fmt.Sprintf("branch changed: %s -> %s", last.Branch, branch)},
			PreviousSessionID: last.ID,
			Inject:            true,
		}
	}
	if dir != last.WorkingDir {
		return Boundary{
			Kind:              DirectoryChange,
			Confidence:        0.7,
			Reasons:           []string{fmt.Sprintf("directory changed: %s -> %s", last.WorkingDir, dir)},
			PreviousSessionID: last.ID,
			Inject:            true,
		}
	}

	var (
		acc     float64
		reasons []string
	)
	if gap > d.cfg.BoundaryTimeThreshold {
		acc += 0.5
		reasons = append(reasons, fmt.Sprintf("time gap: %s", gap.Round(time.Second)))
	}
	continuity := FileContinuity(files, last.ActiveFiles)
	if continuity < d.cfg.ContinuityThreshold {
		acc += 0.3
		reasons = append(reasons, fmt.Sprintf("low file continuity: %.2f", continuity))
	} else {
		acc -= 0.2
		reasons = append(reasons, fmt.Sprintf("high file continuity: %.2f", continuity))
	}

	if acc >= 0.6 {
		return Boundary{
			Kind:              NewSession,
			Confidence:        memory.Clamp01(acc),
			Reasons:           reasons,
			PreviousSessionID: last.ID,
			Inject:            true,
		}
	}
	return Boundary{
		Kind:              Continuation,
		Confidence:        memory.Clamp01(1 - acc),
		Reasons:           reasons,
		PreviousSessionID: last.ID,
	}
}

// FileContinuity is the Jaccard index of the current and previous file sets.
// It is 0 when either set is empty.
func FileContinuity(current, previous []string) float64 {
	return memory.Jaccard(current, previous)
}
