// Package selector packs the most valuable memories into a hard token budget
// and renders them as injectable context.
//
// Selection is greedy by value density: candidates are sorted by value per
// token and admitted until the first one that does not fit. This approximates
// the 0/1 knapsack problem; it can leave budget unused when a cheaper,
// lower-density item would still have fitted.
package selector

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// kindMultipliers scale relevance by how much a kind of memory saves the
// reader from redoing work. Unlisted kinds use 1.0.
var kindMultipliers = map[memory.Kind]float64{
	memory.Decision:         3.0,
	memory.RejectedApproach: 2.5,
	memory.SessionSummary:   2.2,
	memory.Architecture:     1.8,
	memory.BugFix:           1.5,
	memory.ContextThread:    1.3,
	memory.Todo:             0.9,
}

const (
	branchBonus      = 0.3
	immediateAge     = 2 * time.Hour
	immediateRel     = 0.8
	tokensPerWord    = 1.3
	diversityKinds   = 4.0
	maxImmediate     = 5
	maxRecent        = 3
	recentLineCap    = 15
	hintLineCap      = 20
	maxRelatedListed = 2
)

// Current is the working context selection is measured against.
type Current struct {
	Files  []string
	Branch string
	Now    time.Time // zero means time.Now()
}

// Item is an admitted candidate with its selection metrics.
type Item struct {
	memory.Scored
	Rendered string  `json:"rendered"`
	Value    float64 `json:"value"`
	Cost     int     `json:"cost"`
	Density  float64 `json:"density"`
}

// Result is the outcome of one selection.
type Result struct {
	Items      []Item  `json:"items"`
	TotalCost  int     `json:"total_cost"`
	Text       string  `json:"text"`
	Tokens     int     `json:"token_count"`
	Confidence float64 `json:"confidence"`
	Efficiency float64 `json:"efficiency"`
}

// Value estimates how useful s is in the current context.
func Value(s memory.Scored, cur Current) float64 {
	mult, ok := kindMultipliers[s.Kind]
	if !ok {
		mult = 1.0
	}
	v := s.Relevance * mult

	if set := memory.FileSet(cur.Files); len(set) > 0 {
		v += float64(memory.Overlap(s.Files, set)) / float64(len(set))
	}

	v += ageBonus(s.Age(now(cur)))

	if s.Branch != "" && s.Branch == cur.Branch {
		v += branchBonus
	}
	return v
}

func ageBonus(age time.Duration) float64 {
	switch {
	case age < 2*time.Hour:
		return 1.0
	case age < 8*time.Hour:
		return 0.7
	case age < 24*time.Hour:
		return 0.4
	case age < 168*time.Hour:
		return 0.1
	default:
		return 0
	}
}

// Cost is the estimated token count of m's rendering, at least 1.
func Cost(m memory.Memory) int {
	return costOf(Render(m))
}

func costOf(rendered string) int {
	c := int(math.Round(float64(len(strings.Fields(rendered))) * tokensPerWord))
	if c < 1 {
		return 1
	}
	return c
}

// Select admits candidates by descending density while they fit in budget
// and renders the admitted set.
func Select(cands []memory.Scored, budget int, cur Current) Result {
	if cur.Now.IsZero() {
		cur.Now = time.Now()
	}

	items := make([]Item, len(cands))
	for i, c := range cands {
		c.Relevance = memory.Clamp01(c.Relevance)
		rendered := Render(c.Memory)
		cost := costOf(rendered)
		value := Value(c, cur)
		items[i] = Item{
			Scored:   c,
			Rendered: rendered,
			Value:    value,
			Cost:     cost,
			Density:  value / float64(max(cost, 1)),
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Density > items[j].Density
	})

	var res Result
	for _, it := range items {
		if res.TotalCost+it.Cost > budget {
			break
		}
		res.Items = append(res.Items, it)
		res.TotalCost += it.Cost
	}
	if len(res.Items) == 0 {
		return res
	}

	res.Text = renderText(res.Items, cur)
	res.Tokens = int(float64(len(strings.Fields(res.Text))) * tokensPerWord)
	res.Confidence = confidence(res.Items, cur)
	res.Efficiency = efficiency(res.Items)
	return res
}

func now(cur Current) time.Time {
	if cur.Now.IsZero() {
		return time.Now()
	}
	return cur.Now
}

// immediate reports whether an item belongs in the "Current Context" group.
func immediate(it Item, now time.Time) bool {
	return it.Age(now) < immediateAge ||
		it.Kind == memory.Decision ||
		it.Kind == memory.RejectedApproach ||
		it.Relevance > immediateRel
}

func confidence(items []Item, cur Current) float64 {
	if len(items) == 0 {
		return 0
	}
	var rel float64
	var imm int
	kinds := make(map[memory.Kind]struct{})
	for _, it := range items {
		rel += it.Relevance
		if immediate(it, cur.Now) {
			imm++
		}
		kinds[it.Kind] = struct{}{}
	}
	n := float64(len(items))
	coverage := float64(len(sharedFiles(items, cur.Files))) / float64(max(len(memory.FileSet(cur.Files)), 1))
	diversity := math.Min(float64(len(kinds))/diversityKinds, 1)

	return memory.Clamp01(0.4*(rel/n) + 0.3*coverage + 0.2*(float64(imm)/n) + 0.1*diversity)
}

func efficiency(items []Item) float64 {
	var rel float64
	var cost int
	for _, it := range items {
		rel += it.Relevance
		cost += it.Cost
	}
	return rel / float64(max(cost, 1))
}

// sharedFiles returns the current files referenced by any item, sorted.
func sharedFiles(items []Item, current []string) []string {
	cur := memory.FileSet(current)
	set := make(map[string]struct{})
	for _, it := range items {
		for _, f := range it.Files {
			if _, ok := cur[f]; ok {
				set[f] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
