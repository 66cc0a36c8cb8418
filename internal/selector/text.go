package selector

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lazypower/recall/internal/memory"
)

// kindOrder is the display order within a group. Kinds not listed follow in
// the order they first appear.
var kindOrder = []memory.Kind{
	memory.Decision,
	memory.RejectedApproach,
	memory.SessionSummary,
	memory.Architecture,
	memory.BugFix,
	memory.Todo,
}

func renderText(items []Item, cur Current) string {
	var imm, rec []Item
	for _, it := range items {
		if immediate(it, cur.Now) {
			imm = append(imm, it)
		} else {
			rec = append(rec, it)
		}
	}

	var lines []string
	if len(imm) > 0 {
		lines = append(lines, "# Current Context:")
		lines = append(lines, group(imm, maxImmediate)...)
	}
	if len(rec) > 0 && len(lines) < recentLineCap {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "# Recent:")
		lines = append(lines, group(rec, maxRecent)...)
	}
	if h := hints(items, cur); len(h) > 0 && len(lines) < hintLineCap {
		lines = append(lines, "")
		lines = append(lines, h...)
	}
	return strings.Join(lines, "\n")
}

// group renders up to limit items, ordered by kind.
func group(items []Item, limit int) []string {
	byKind := make(map[memory.Kind][]Item)
	var seen []memory.Kind
	for _, it := range items {
		if _, ok := byKind[it.Kind]; !ok {
			seen = append(seen, it.Kind)
		}
		byKind[it.Kind] = append(byKind[it.Kind], it)
	}

	order := append([]memory.Kind(nil), kindOrder...)
	for _, k := range seen {
		if !ordered(k) {
			order = append(order, k)
		}
	}

	var lines []string
	for _, k := range order {
		for _, it := range byKind[k] {
			if len(lines) == limit {
				return lines
			}
			lines = append(lines, "- "+it.Rendered)
		}
	}
	return lines
}

func ordered(k memory.Kind) bool {
	for _, o := range kindOrder {
		if o == k {
			return true
		}
	}
	return false
}

func hints(items []Item, cur Current) []string {
	var out []string

	if shared := sharedFiles(items, cur.Files); len(shared) > 0 {
		if len(shared) <= maxRelatedListed {
			names := make([]string, len(shared))
			for i, f := range shared {
				names[i] = filepath.Base(f)
			}
			out = append(out, "* Context relates to: "+strings.Join(names, ", "))
		} else {
			out = append(out, fmt.Sprintf("* Context covers %d of your current files", len(shared)))
		}
	}

	var decisions, rejections int
	for _, it := range items {
		switch it.Kind {
		case memory.Decision:
			decisions++
		case memory.RejectedApproach:
			rejections++
		}
	}
	if decisions > 0 && rejections > 0 {
		out = append(out, fmt.Sprintf("* %d decisions made, %d approaches avoided", decisions, rejections))
	}
	return out
}
