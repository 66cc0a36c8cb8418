package memory

import "fmt"

// Kind classifies a memory record. The set is closed: scoring, value and
// rendering tables switch over it exhaustively.
type Kind int

const (
	KindUnknown Kind = iota
	Decision
	Todo
	BugFix
	RejectedApproach
	Architecture
	SessionSummary
	CodeContext
	ContextThread
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	Decision:         "decision",
	Todo:             "todo",
	BugFix:           "bug_fix",
	RejectedApproach: "rejected_approach",
	Architecture:     "architecture",
	SessionSummary:   "session_summary",
	CodeContext:      "code_context",
	ContextThread:    "context_thread",
}

// Kinds lists every valid kind in declaration order.
func Kinds() []Kind {
	return []Kind{Decision, Todo, BugFix, RejectedApproach, Architecture, SessionSummary, CodeContext, ContextThread}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a stored or wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown memory kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
