package relevance

import (
	"path"
	"sort"
	"strings"
)

// maxPartialFileScore keeps near misses below any direct file match.
const maxPartialFileScore = 0.8

// FileOverlap scores how much a memory's files relate to the current files.
// Shared paths score |mem∩cur| / |cur|. Without a shared path, each pair of
// files earns partial credit for a common directory, a common extension and
// similar names, capped at 0.8.
func FileOverlap(memFiles, current []string) float64 {
	if len(memFiles) == 0 || len(current) == 0 {
		return 0
	}

	memSet := make(map[string]struct{}, len(memFiles))
	for _, f := range memFiles {
		memSet[f] = struct{}{}
	}
	curSet := make(map[string]struct{}, len(current))
	direct := 0
	for _, f := range current {
		if _, dup := curSet[f]; dup {
			continue
		}
		curSet[f] = struct{}{}
		if _, ok := memSet[f]; ok {
			direct++
		}
	}
	if direct > 0 {
		return float64(direct) / float64(len(curSet))
	}

	partial := 0.0
	for _, cf := range current {
		cDir, cName, cExt := splitPath(cf)
		for _, mf := range memFiles {
			mDir, mName, mExt := splitPath(mf)
			if cDir != "" && cDir == mDir {
				partial += 0.3
			}
			if cExt != "" && cExt == mExt {
				partial += 0.1
			}
			if sim := FilenameSimilarity(cName, mName); sim > 0.6 {
				partial += 0.2 * sim
			}
		}
	}
	if partial > maxPartialFileScore {
		return maxPartialFileScore
	}
	return partial
}

// splitPath returns the directory, base name and extension (without the dot)
// of a slash-separated path.
func splitPath(p string) (dir, name, ext string) {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		dir, name = p[:i], p[i+1:]
	} else {
		name = p
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	return dir, name, ext
}

// FilenameSimilarity counts case-insensitive characters that match at the same
// position, divided by the longer length. Identical names score 1.
func FilenameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	matches := 0
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] == rb[i] {
			matches++
		}
	}
	return float64(matches) / float64(longest)
}

var extensionTags = map[string]string{
	"js":   "frontend",
	"jsx":  "frontend",
	"ts":   "frontend",
	"tsx":  "frontend",
	"py":   "backend",
	"sql":  "database",
	"css":  "styling",
	"scss": "styling",
	"sass": "styling",
	"md":   "documentation",
	"txt":  "documentation",
}

var segmentTags = map[string]string{
	"api":        "api",
	"routes":     "api",
	"endpoints":  "api",
	"db":         "database",
	"database":   "database",
	"models":     "database",
	"auth":       "security",
	"security":   "security",
	"test":       "testing",
	"tests":      "testing",
	"spec":       "testing",
	"ui":         "frontend",
	"components": "frontend",
	"frontend":   "frontend",
	"server":     "backend",
	"backend":    "backend",
	"service":    "backend",
}

// TagsFromFiles derives topic tags from file extensions and path segments.
// The result is sorted and free of duplicates.
func TagsFromFiles(files []string) []string {
	set := make(map[string]struct{})
	for _, f := range files {
		lowered := strings.ToLower(f)
		if ext := strings.TrimPrefix(path.Ext(lowered), "."); ext != "" {
			if tag, ok := extensionTags[ext]; ok {
				set[tag] = struct{}{}
			}
		}
		for _, seg := range strings.Split(lowered, "/") {
			if tag, ok := segmentTags[seg]; ok {
				set[tag] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
