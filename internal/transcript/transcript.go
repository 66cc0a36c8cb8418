// Package transcript reads agent session transcripts (JSON lines) and
// condenses them into the one-paragraph summary stored when a session ends.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	minTurnLen    = 5
	maxLineBytes  = 1 << 20
	askedMaxLen   = 120
	outcomeMaxLen = 240
)

// Turn is one user or assistant message with its plain text.
type Turn struct {
	Role string
	Text string
}

type line struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

var reminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// ReadFile reads the transcript at path.
func ReadFile(path string) ([]Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses transcript lines. Malformed lines, tool payloads and turns
// shorter than a few characters are skipped.
func Read(r io.Reader) ([]Turn, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var turns []Turn
	for scanner.Scan() {
		if t, ok := parseLine(scanner.Bytes()); ok {
			turns = append(turns, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return turns, fmt.Errorf("scan transcript: %w", err)
	}
	return turns, nil
}

func parseLine(raw []byte) (Turn, bool) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil || l.Message == nil {
		return Turn{}, false
	}
	if l.Type != "user" && l.Type != "assistant" {
		return Turn{}, false
	}
	var m message
	if err := json.Unmarshal(l.Message, &m); err != nil {
		return Turn{}, false
	}

	text := strings.TrimSpace(reminderRe.ReplaceAllString(contentText(m.Content), ""))
	if len(text) < minTurnLen || strings.HasPrefix(text, "{") {
		return Turn{}, false
	}
	return Turn{Role: l.Type, Text: text}, true
}

// contentText handles content that is either a string or a list of blocks,
// keeping only text blocks.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Summarize condenses a session into what was asked first and how the
// assistant left it.
func Summarize(turns []Turn) string {
	var asked, outcome string
	prompts := 0
	for _, t := range turns {
		switch t.Role {
		case "user":
			prompts++
			if asked == "" {
				asked = t.Text
			}
		case "assistant":
			outcome = t.Text
		}
	}

	var parts []string
	if asked != "" {
		parts = append(parts, "Asked: "+clip(asked, askedMaxLen))
	}
	if outcome != "" {
		parts = append(parts, "Outcome: "+clip(outcome, outcomeMaxLen))
	}
	if len(parts) == 0 {
		return ""
	}
	if prompts > 1 {
		parts = append(parts, fmt.Sprintf("(%d prompts)", prompts))
	}
	return strings.Join(parts, " ")
}

// clip flattens whitespace and cuts s to n runes.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
