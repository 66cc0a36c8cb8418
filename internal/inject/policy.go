package inject

const (
	initialThreshold = 0.6
	targetThreshold  = 0.7
	adjustRate       = 0.1
	minThreshold     = 0.3
	maxThreshold     = 0.9
)

// Policy is the adaptive threshold the time-pattern trigger is compared
// against. It is not safe for concurrent use; the orchestrator guards it.
type Policy struct {
	threshold float64
}

// NewPolicy returns a policy at the initial threshold.
func NewPolicy() *Policy {
	return &Policy{threshold: initialThreshold}
}

// Threshold returns the current threshold.
func (p *Policy) Threshold() float64 {
	return p.threshold
}

// Observe moves the threshold 10% toward the observed trigger score, then 10%
// toward the 0.7 target, and keeps it within [0.3, 0.9].
func (p *Policy) Observe(score float64) float64 {
	t := p.threshold
	t += (score - t) * adjustRate
	t += (targetThreshold - t) * adjustRate
	p.threshold = min(max(t, minThreshold), maxThreshold)
	return p.threshold
}
