package summarizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lazypower/recall/internal/store"
)

const (
	maxListedFiles     = 5
	maxListedDecisions = 3
)

// EstimateTokens approximates a token count as 1.3 tokens per word.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// ImmediateText is the detailed, multi-line form of a session.
func ImmediateText(s *store.Session, decisions []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Session %s", s.StartTime.Format("15:04"))
	if s.EndTime != nil {
		fmt.Fprintf(&b, " (%dmin)", int(s.EndTime.Sub(s.StartTime).Minutes()))
	}
	fmt.Fprintf(&b, "\n**Branch:** %s", s.Branch)

	files := s.ActiveFiles
	more := ""
	if len(files) > maxListedFiles {
		files, more = files[:maxListedFiles], "..."
	}
	fmt.Fprintf(&b, "\n**Files:** %s%s", strings.Join(files, ", "), more)

	if len(s.Commits) > 0 {
		fmt.Fprintf(&b, "\n**Commits:** %d commits", len(s.Commits))
	}
	if len(decisions) > 0 {
		b.WriteString("\n**Key Decisions:**")
		for i, d := range decisions {
			if i == maxListedDecisions {
				break
			}
			fmt.Fprintf(&b, "\n- %s", d)
		}
	}
	if s.Summary != "" {
		fmt.Fprintf(&b, "\n**Summary:** %s", s.Summary)
	}
	return b.String()
}

var (
	branchLine   = regexp.MustCompile(`\*\*Branch:\*\* (.+)`)
	filesLine    = regexp.MustCompile(`\*\*Files:\*\* (.+)`)
	decisionLine = regexp.MustCompile(`(?m)^- (.+)$`)
)

// RecentText condenses the immediate form to a single line.
func RecentText(immediate string) string {
	var parts []string
	if m := branchLine.FindStringSubmatch(immediate); m != nil {
		parts = append(parts, "Branch: "+m[1])
	}
	if m := filesLine.FindStringSubmatch(immediate); m != nil {
		parts = append(parts, fmt.Sprintf("Files: %d", len(strings.Split(m[1], ","))))
	}
	if ds := decisionLine.FindAllString(immediate, -1); len(ds) > 0 {
		parts = append(parts, fmt.Sprintf("Decisions: %d made", len(ds)))
	}
	return "Session: " + strings.Join(parts, ", ")
}

// HistoricalText is the one-line digest used for sessions older than a day.
func HistoricalText(s *store.Session, decisions []string) string {
	parts := []string{s.StartTime.Format("01/02")}
	if len(decisions) > 0 {
		parts = append(parts, fmt.Sprintf("%d decisions", len(decisions)))
	}
	if len(s.ActiveFiles) > 0 {
		parts = append(parts, fmt.Sprintf("%d files", len(s.ActiveFiles)))
	}
	if s.Branch != "" && s.Branch != "main" {
		parts = append(parts, "("+s.Branch+")")
	}
	return strings.Join(parts, " • ")
}
