package selector

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lazypower/recall/internal/memory"
)

// renderFunc produces the compressed one-line form of a memory.
type renderFunc func(content, rationale string, files []string) string

var strategies = map[memory.Kind]renderFunc{
	memory.Decision:         renderDecision,
	memory.RejectedApproach: renderRejection,
	memory.SessionSummary:   renderSessionSummary,
	memory.BugFix:           renderBugFix,
}

var (
	decisionMarkers  = []string{"decided", "chose", "selected", "will use", "going with"}
	rejectionMarkers = []string{"rejected", "avoiding", "not using", "against"}
)

// Render returns the compressed one-line rendering of m used both for display
// and for estimating its token cost.
func Render(m memory.Memory) string {
	fn, ok := strategies[m.Kind]
	if !ok {
		fn = renderGeneric
	}
	return fn(oneLine(m.Content), oneLine(m.Rationale), m.Files)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func renderDecision(content, rationale string, files []string) string {
	var parts []string
	if i := indexAny(content, decisionMarkers); i >= 0 {
		parts = append(parts, "+ "+strings.TrimSpace(head(content[i:], 40))+"...")
	} else {
		parts = append(parts, "+ "+head(content, 30)+"...")
	}
	if i := indexAny(rationale, rejectionMarkers); i >= 0 {
		parts = append(parts, "(vs "+strings.TrimSpace(head(rationale[i:], 25))+"...)")
	}
	if len(files) > 0 {
		parts = append(parts, "["+filepath.Base(files[0])+"]")
	}
	return strings.Join(parts, " ")
}

func renderRejection(content, rationale string, _ []string) string {
	out := "x " + truncate(content, 25)
	if rationale != "" {
		out += " (" + truncate(rationale, 20) + ")"
	}
	return out
}

func renderSessionSummary(content, _ string, files []string) string {
	out := "> " + truncate(content, 50)
	switch {
	case len(files) == 1:
		out += " [" + filepath.Base(files[0]) + "]"
	case len(files) > 1:
		out += fmt.Sprintf(" [%d files]", len(files))
	}
	return out
}

func renderBugFix(content, _ string, files []string) string {
	out := "! " + truncate(content, 35)
	if len(files) > 0 {
		out += " [" + filepath.Base(files[0]) + "]"
	}
	return out
}

func renderGeneric(content, rationale string, files []string) string {
	parts := []string{truncate(content, 40)}
	if rationale != "" {
		parts = append(parts, "("+truncate(rationale, 25)+")")
	}
	if len(files) > 0 {
		parts = append(parts, "["+filepath.Base(files[0])+"]")
	}
	return strings.Join(parts, " ")
}

// indexAny returns the byte offset in s of the first marker found, checked in
// marker order and compared case-insensitively, or -1. Markers are lower-case
// ASCII and offsets always fall on a rune boundary of s.
func indexAny(s string, markers []string) int {
	for _, m := range markers {
		for i := range s {
			if len(s)-i < len(m) {
				break
			}
			if strings.EqualFold(s[i:i+len(m)], m) {
				return i
			}
		}
	}
	return -1
}

// head returns the first n runes of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncate cuts s to n runes and marks the cut with "...".
func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return head(s, n) + "..."
}
