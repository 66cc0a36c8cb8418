// Package inject decides when to surface remembered context and assembles it.
//
// A call moves the orchestrator from Idle to Evaluating and ends in either
// Injected or Suppressed with a reason, after which it is Idle again.
package inject

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/selector"
	"github.com/lazypower/recall/internal/session"
	"github.com/lazypower/recall/internal/store"
	"github.com/lazypower/recall/internal/summarizer"
)

// State is a step of the injection state machine.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateInjected   State = "injected"
	StateSuppressed State = "suppressed"
)

// Reason explains a suppression.
type Reason string

const (
	ReasonCooldown      Reason = "cooldown"
	ReasonNoTrigger     Reason = "no-trigger"
	ReasonNoCandidates  Reason = "no-candidates"
	ReasonLowConfidence Reason = "low-confidence"
)

// Outcome is the terminal state of one MaybeInject call.
type Outcome struct {
	State   State  `json:"state"`
	Reason  Reason `json:"reason,omitempty"`
	Trigger string `json:"trigger,omitempty"`
}

// Injected reports whether context was produced.
func (o Outcome) Injected() bool {
	return o.State == StateInjected
}

// Metrics summarize an injection.
type Metrics struct {
	TokenCount       int     `json:"token_count"`
	MemoriesIncluded int     `json:"memories_included"`
	Efficiency       float64 `json:"context_efficiency_score"`
	Confidence       float64 `json:"auto_trigger_confidence"`
}

// Result is the injected context.
type Result struct {
	Context   string           `json:"context"`
	Metrics   Metrics          `json:"metrics"`
	Items     []selector.Item  `json:"items,omitempty"`
	Boundary  session.Boundary `json:"boundary"`
	SessionID string           `json:"session_id,omitempty"`
}

// Store is the session history the triggers read.
type Store interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	SessionsWithFile(ctx context.Context, path string, days int) ([]store.Session, error)
	RecentSessions(ctx context.Context, since time.Time, limit int) ([]store.Session, error)
	ActiveThreads(ctx context.Context, limit int) ([]store.Thread, error)
}

// Detector classifies session boundaries.
type Detector interface {
	Detect(ctx context.Context, files []string, dir, branch string) session.Boundary
}

// Tracker owns the current session.
type Tracker interface {
	Current(dir string) string
	Start(ctx context.Context, wc session.WorkingContext) (*store.Session, error)
	UpdateOrStart(ctx context.Context, wc session.WorkingContext, extra ...string) (*store.Session, error)
}

// Summaries builds the summary hierarchy.
type Summaries interface {
	Build(ctx context.Context, files []string) summarizer.Hierarchy
}

// Config tunes the orchestrator.
type Config struct {
	MaxTokens     int
	Cooldown      time.Duration
	ShortCooldown time.Duration
	MinConfidence float64
	Timeout       time.Duration
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     800,
		Cooldown:      15 * time.Minute,
		ShortCooldown: 5 * time.Minute,
		MinConfidence: 0.6,
		Timeout:       3 * time.Second,
	}
}

// Orchestrator is the single entry point for automatic context injection.
type Orchestrator struct {
	cfg       Config
	db        Store
	detector  Detector
	tracker   Tracker
	summaries Summaries
	now       func() time.Time

	// run serializes calls so cooldown and threshold updates never interleave.
	run           sync.Mutex
	policy        *Policy
	lastInjection time.Time

	mu    sync.Mutex
	state State
	last  Outcome
}

// New creates an orchestrator. summaries may be nil, in which case raw
// candidates are ranked directly.
func New(cfg Config, db Store, det Detector, tr Tracker, summaries Summaries) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		db:        db,
		detector:  det,
		tracker:   tr,
		summaries: summaries,
		now:       time.Now,
		policy:    NewPolicy(),
		state:     StateIdle,
	}
}

// State returns the current state of the machine.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastOutcome returns the outcome of the most recent call.
func (o *Orchestrator) LastOutcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Threshold returns the adaptive time-trigger threshold.
func (o *Orchestrator) Threshold() float64 {
	o.run.Lock()
	defer o.run.Unlock()
	return o.policy.Threshold()
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) finish(out Outcome) Outcome {
	o.mu.Lock()
	o.state = StateIdle
	o.last = out
	o.mu.Unlock()
	return out
}

func suppressed(r Reason, trigger string) Outcome {
	return Outcome{State: StateSuppressed, Reason: r, Trigger: trigger}
}

// MaybeInject decides whether the working context warrants an injection and,
// if so, selects and renders it. force skips the cooldown and the confidence
// gate and always counts as a trigger. A nil Result means nothing should be
// injected; the Outcome says why.
func (o *Orchestrator) MaybeInject(ctx context.Context, wc session.WorkingContext, candidates []memory.Memory, force bool) (*Result, Outcome) {
	o.run.Lock()
	defer o.run.Unlock()

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	o.setState(StateEvaluating)
	now := o.now()

	if !force && !o.lastInjection.IsZero() {
		cooldown := o.cfg.Cooldown
		if significantChange(wc, o.tracked(ctx, wc)) {
			cooldown = o.cfg.ShortCooldown
		}
		if now.Sub(o.lastInjection) < cooldown {
			return nil, o.finish(suppressed(ReasonCooldown, ""))
		}
	}

	boundary, current := o.detectSessionStart(ctx, wc)
	trigger := ""
	switch {
	case force:
		trigger = "force"
	case boundary.Inject:
		trigger = string(boundary.Kind)
	default:
		name, ok := o.additionalTriggers(ctx, wc, current, now)
		if !ok {
			return nil, o.finish(suppressed(ReasonNoTrigger, ""))
		}
		trigger = name
	}

	cands := o.gather(ctx, wc.Files, candidates, now)
	if len(cands) == 0 && force {
		cands = mostRecent(candidates, wc.Files, fallbackRecent, now)
	}
	if len(cands) == 0 {
		return nil, o.finish(suppressed(ReasonNoCandidates, trigger))
	}

	sel := selector.Select(cands, o.cfg.MaxTokens, selector.Current{Files: wc.Files, Branch: wc.Branch, Now: now})
	if len(sel.Items) == 0 {
		return nil, o.finish(suppressed(ReasonNoCandidates, trigger))
	}
	if !force && sel.Confidence <= o.cfg.MinConfidence {
		slog.Debug("injection below confidence", "component", "inject", "confidence", sel.Confidence, "trigger", trigger)
		return nil, o.finish(suppressed(ReasonLowConfidence, trigger))
	}

	o.lastInjection = now
	res := &Result{
		Context: sel.Text,
		Metrics: Metrics{
			TokenCount:       sel.Tokens,
			MemoriesIncluded: len(sel.Items),
			Efficiency:       sel.Efficiency,
			Confidence:       sel.Confidence,
		},
		Items:    sel.Items,
		Boundary: boundary,
	}
	if current != nil {
		res.SessionID = current.ID
	}

	slog.Info("injected context", "component", "inject",
		"trigger", trigger,
		"tokens", res.Metrics.TokenCount,
		"memories", res.Metrics.MemoriesIncluded,
		"efficiency", res.Metrics.Efficiency)
	return res, o.finish(Outcome{State: StateInjected, Trigger: trigger})
}

// detectSessionStart runs boundary detection and records the result with the
// tracker: a boundary that warrants injection starts a new session, anything
// else updates the current one.
func (o *Orchestrator) detectSessionStart(ctx context.Context, wc session.WorkingContext) (session.Boundary, *store.Session) {
	b := o.detector.Detect(ctx, wc.Files, wc.WorkingDir, wc.Branch)

	var (
		s   *store.Session
		err error
	)
	if b.Inject {
		s, err = o.tracker.Start(ctx, wc)
	} else {
		s, err = o.tracker.UpdateOrStart(ctx, wc, b.PreviousSessionID)
	}
	if err != nil {
		slog.Warn("recording session failed", "component", "inject", "boundary", b.Kind, "err", err)
	}
	return b, s
}

// tracked returns the open session the working context belongs to, if any.
func (o *Orchestrator) tracked(ctx context.Context, wc session.WorkingContext) *store.Session {
	for _, id := range []string{wc.SessionID, o.tracker.Current(wc.WorkingDir)} {
		if id == "" {
			continue
		}
		s, err := o.db.GetSession(ctx, id)
		if err != nil {
			slog.Warn("loading tracked session failed", "component", "inject", "session", id, "err", err)
			continue
		}
		if s != nil && s.Open() {
			return s
		}
	}
	return nil
}
