package relevance

import "github.com/lazypower/recall/internal/memory"

// Intent is what the caller wants the memories for.
type Intent string

const (
	IntentSearch      Intent = "search"
	IntentContext     Intent = "context"
	IntentFileHistory Intent = "file_history"
	IntentGeneral     Intent = "general"
)

// neutralTypeScore applies to any intent/kind pair not in the table.
const neutralTypeScore = 0.5

var intentScores = map[Intent]map[memory.Kind]float64{
	IntentSearch: {
		memory.Decision:         0.9,
		memory.Todo:             0.8,
		memory.BugFix:           0.7,
		memory.RejectedApproach: 0.6,
		memory.Architecture:     0.9,
	},
	IntentContext: {
		memory.Decision:         1.0,
		memory.Todo:             0.6,
		memory.BugFix:           0.5,
		memory.RejectedApproach: 0.7,
		memory.Architecture:     1.0,
	},
	IntentFileHistory: {
		memory.Decision:         0.8,
		memory.Todo:             0.9,
		memory.BugFix:           0.9,
		memory.RejectedApproach: 0.5,
		memory.Architecture:     0.7,
	},
}

// TypeScore rates how useful a memory kind is for an intent.
func TypeScore(kind memory.Kind, intent Intent) float64 {
	if score, ok := intentScores[intent][kind]; ok {
		return score
	}
	return neutralTypeScore
}

// ParseIntent maps a wire name to an Intent, defaulting to general.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentSearch, IntentContext, IntentFileHistory:
		return Intent(s)
	default:
		return IntentGeneral
	}
}
