package summarizer

import (
	"strings"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/store"
)

func TestImmediateText(t *testing.T) {
	start := time.Date(2026, 3, 7, 14, 5, 0, 0, time.Local)
	end := start.Add(45 * time.Minute)
	s := &store.Session{
		StartTime:   start,
		EndTime:     &end,
		Branch:      "main",
		ActiveFiles: []string{"a.go", "b.go"},
		Commits:     []string{"abc fix", "def feat"},
		Summary:     "wrapped up routing",
	}

	got := ImmediateText(s, []string{"use chi", "drop gin", "keep sqlite", "fourth"})
	want := strings.Join([]string{
		"## Session 14:05 (45min)",
		"**Branch:** main",
		"**Files:** a.go, b.go",
		"**Commits:** 2 commits",
		"**Key Decisions:**",
		"- use chi",
		"- drop gin",
		"- keep sqlite",
		"**Summary:** wrapped up routing",
	}, "\n")
	if got != want {
		t.Errorf("ImmediateText =\n%s\nwant\n%s", got, want)
	}
}

func TestImmediateTextOpenSessionManyFiles(t *testing.T) {
	s := &store.Session{
		StartTime:   time.Date(2026, 3, 7, 9, 30, 0, 0, time.Local),
		Branch:      "feature",
		ActiveFiles: []string{"a", "b", "c", "d", "e", "f"},
	}

	got := ImmediateText(s, nil)
	want := "## Session 09:30\n**Branch:** feature\n**Files:** a, b, c, d, e..."
	if got != want {
		t.Errorf("ImmediateText = %q, want %q", got, want)
	}
}

func TestRecentText(t *testing.T) {
	immediate := "## Session 14:05 (45min)\n**Branch:** main\n**Files:** a.go, b.go, c.go\n**Key Decisions:**\n- use chi\n- drop gin"

	got := RecentText(immediate)
	want := "Session: Branch: main, Files: 3, Decisions: 2 made"
	if got != want {
		t.Errorf("RecentText = %q, want %q", got, want)
	}

	if got := RecentText("## Session 10:00\n**Branch:** main\n**Files:** x.go"); got != "Session: Branch: main, Files: 1" {
		t.Errorf("RecentText without decisions = %q", got)
	}
}

func TestHistoricalText(t *testing.T) {
	start := time.Date(2026, 3, 7, 14, 5, 0, 0, time.Local)
	tests := []struct {
		name      string
		s         store.Session
		decisions []string
		want      string
	}{
		{
			name:      "everything",
			s:         store.Session{StartTime: start, Branch: "feature", ActiveFiles: []string{"a", "b", "c"}},
			decisions: []string{"x", "y"},
			want:      "03/07 • 2 decisions • 3 files • (feature)",
		},
		{
			name: "main branch without activity",
			s:    store.Session{StartTime: start, Branch: "main"},
			want: "03/07",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HistoricalText(&tt.s, tt.decisions); got != tt.want {
				t.Errorf("HistoricalText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one two three", 3},
		{"a b c d e f g h i j", 13},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
