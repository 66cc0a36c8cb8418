package summarizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lazypower/recall/internal/store"
)

// Compressed is a merged narrative of several historical summaries.
type Compressed struct {
	Original  string   `json:"original"`
	Text      string   `json:"text"`
	Ratio     float64  `json:"compression_ratio"`
	KeyPoints []string `json:"key_points"`
	Tags      []string `json:"semantic_tags"`
}

var tagKeywords = []struct {
	tag   string
	words []string
}{
	{"api", []string{"api", "endpoint", "rest"}},
	{"frontend", []string{"ui", "frontend", "component"}},
	{"database", []string{"db", "database", "model"}},
	{"testing", []string{"test", "testing", "spec"}},
	{"auth", []string{"auth", "security", "login"}},
}

// CompressHistorical folds summaries into one short narrative built from
// their decisions, file counts and topic tags.
func CompressHistorical(summaries []store.Summary) Compressed {
	if len(summaries) == 0 {
		return Compressed{Ratio: 1}
	}

	texts := make([]string, len(summaries))
	for i, s := range summaries {
		texts[i] = s.Text
	}
	original := strings.Join(texts, "\n")

	var points []string
	var decisions int
	var files bool
	seen := make(map[string]bool)
	add := func(p string) bool {
		if seen[p] {
			return false
		}
		seen[p] = true
		points = append(points, p)
		return true
	}
	for _, s := range summaries {
		for _, d := range s.KeyDecisions {
			if add(d) {
				decisions++
			}
		}
		if len(s.ModifiedFiles) > 0 {
			add(fmt.Sprintf("Modified %d files", len(s.ModifiedFiles)))
			files = true
		}
	}

	tags := semanticTags(summaries)
	text := narrative(points, decisions, files, tags)
	return Compressed{
		Original:  original,
		Text:      text,
		Ratio:     float64(len(text)) / float64(max(len(original), 1)),
		KeyPoints: points,
		Tags:      tags,
	}
}

func semanticTags(summaries []store.Summary) []string {
	set := make(map[string]struct{})
	for _, s := range summaries {
		words := wordSet(strings.Map(func(r rune) rune {
			if strings.ContainsRune(".,;:()[]*#/-", r) {
				return ' '
			}
			return r
		}, s.Text))
		for _, tk := range tagKeywords {
			for _, w := range tk.words {
				if _, ok := words[w]; ok {
					set[tk.tag] = struct{}{}
					break
				}
			}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func narrative(points []string, decisions int, files bool, tags []string) string {
	if len(points) == 0 {
		return "No significant activity"
	}
	var parts []string
	if decisions > 0 {
		parts = append(parts, fmt.Sprintf("Made %d key decisions", decisions))
	}
	if files {
		parts = append(parts, "worked on multiple files")
	}
	if len(tags) > 0 {
		parts = append(parts, "Areas: "+strings.Join(tags, ", "))
	}
	if len(parts) == 0 {
		return "General development work"
	}
	return strings.Join(parts, " • ")
}
