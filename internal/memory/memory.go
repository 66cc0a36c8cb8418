// Package memory defines the typed memory records that flow through scoring,
// selection and injection.
package memory

import "time"

// Memory is a typed, timestamped record produced upstream. Similarity is
// supplied by the vector collaborator and is never computed here.
type Memory struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content"`
	Rationale  string    `json:"rationale,omitempty"`
	Files      []string  `json:"files,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Similarity float64   `json:"similarity"`
}

// Age returns how old the memory is relative to now.
func (m Memory) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}

// Scored pairs a memory with its relevance score in [0,1].
type Scored struct {
	Memory
	Relevance float64 `json:"relevance"`
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FileSet builds a set from a file list.
func FileSet(files []string) map[string]struct{} {
	set := make(map[string]struct{}, len(files))
	for _, f := range files {
		set[f] = struct{}{}
	}
	return set
}

// Overlap counts the files of a present in b.
func Overlap(a []string, b map[string]struct{}) int {
	n := 0
	seen := make(map[string]struct{}, len(a))
	for _, f := range a {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if _, ok := b[f]; ok {
			n++
		}
	}
	return n
}

// Jaccard returns |a∩b| / |a∪b| over two file lists. Either side empty gives 0.
func Jaccard(a, b []string) float64 {
	setA, setB := FileSet(a), FileSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for f := range setA {
		if _, ok := setB[f]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
