package summarizer

import "github.com/lazypower/recall/internal/store"

// View is a hierarchy prepared for display.
type View struct {
	Immediate  []store.Summary `json:"immediate"`
	Recent     []store.Summary `json:"recent"`
	Historical []store.Summary `json:"historical"`
	Digest     Compressed      `json:"historical_digest"`
	Collapsed  int             `json:"collapsed"`
	Partial    bool            `json:"partial"`
}

// View collapses duplicate summaries within each tier and folds the
// historical tier into a digest. Collapsed counts the summaries hidden.
func (h Hierarchy) View() View {
	v := View{Partial: h.Partial}
	tiers := []struct {
		in  []store.Summary
		out *[]store.Summary
	}{
		{h.Immediate, &v.Immediate},
		{h.Recent, &v.Recent},
		{h.Historical, &v.Historical},
	}
	for _, t := range tiers {
		*t.out = Collapse(t.in)
		for _, g := range DuplicateGroups(t.in) {
			v.Collapsed += len(g) - 1
		}
	}
	v.Digest = CompressHistorical(v.Historical)
	return v
}
