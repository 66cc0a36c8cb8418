package summarizer

import (
	"strings"

	"github.com/lazypower/recall/internal/store"
)

const (
	fileDupThreshold = 0.7
	textDupThreshold = 0.8
)

// Duplicates reports whether two summaries describe the same work: their
// modified files overlap by more than 0.7, or their word sets by more than 0.8.
func Duplicates(a, b store.Summary) bool {
	return fileOverlap(a.ModifiedFiles, b.ModifiedFiles) > fileDupThreshold ||
		TextSimilarity(a.Text, b.Text) > textDupThreshold
}

// fileOverlap is |a∩b| / max(|a∪b|, 1).
func fileOverlap(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, f := range a {
		setA[f] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	inter := 0
	for _, f := range b {
		if _, dup := setB[f]; dup {
			continue
		}
		setB[f] = struct{}{}
		if _, ok := setA[f]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

// TextSimilarity is the Jaccard index of the lower-cased word sets. Either
// text empty gives 0.
func TextSimilarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(wa)+len(wb)-inter)
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// DuplicateGroups groups summaries greedily in input order: each ungrouped
// summary collects every later ungrouped summary that duplicates it. Only
// groups with more than one member are returned.
func DuplicateGroups(summaries []store.Summary) [][]store.Summary {
	var groups [][]store.Summary
	for _, idx := range groupIndexes(summaries) {
		if len(idx) < 2 {
			continue
		}
		group := make([]store.Summary, len(idx))
		for i, j := range idx {
			group[i] = summaries[j]
		}
		groups = append(groups, group)
	}
	return groups
}

// Collapse keeps the first member of every duplicate group, preserving input
// order. It is a display transform; nothing stored changes.
func Collapse(summaries []store.Summary) []store.Summary {
	groups := groupIndexes(summaries)
	out := make([]store.Summary, 0, len(groups))
	for _, idx := range groups {
		out = append(out, summaries[idx[0]])
	}
	return out
}

func groupIndexes(summaries []store.Summary) [][]int {
	grouped := make([]bool, len(summaries))
	var groups [][]int
	for i := range summaries {
		if grouped[i] {
			continue
		}
		grouped[i] = true
		group := []int{i}
		for j := i + 1; j < len(summaries); j++ {
			if grouped[j] {
				continue
			}
			if Duplicates(summaries[i], summaries[j]) {
				grouped[j] = true
				group = append(group, j)
			}
		}
		groups = append(groups, group)
	}
	return groups
}
