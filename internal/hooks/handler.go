package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/lazypower/recall/internal/transcript"
)

// Events lists the hook events the handler understands.
var Events = []string{"start", "tool", "submit", "stop", "end"}

// Handler dispatches one hook invocation to the recall server. It never
// returns an error: failures are written to Stderr and the hook exits 0.
type Handler struct {
	Client *Client
	Stdout io.Writer
	Stderr io.Writer
}

// Handle reads HookInput from stdin and dispatches on event.
func (h *Handler) Handle(event string, stdin io.Reader) {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		// Stdin may be empty for some events.
		if event == "start" {
			WriteSessionStartOutput(h.Stdout, "")
			return
		}
		reportError(h.Stderr, fmt.Errorf("decode stdin: %w", err))
		return
	}

	if !h.Client.Healthy() {
		if event == "start" {
			WriteSessionStartOutput(h.Stdout, "")
		}
		return
	}

	var err error
	switch event {
	case "start":
		err = h.start(&input)
	case "tool":
		err = h.tool(&input)
	case "submit":
		err = h.submit(&input)
	case "stop":
		err = h.stop(&input)
	case "end":
		err = h.end(&input)
	default:
		err = fmt.Errorf("unknown hook event: %s", event)
	}
	if err != nil {
		reportError(h.Stderr, err)
	}
}

// start asks for context and always answers with a SessionStart document,
// empty when nothing is injected.
func (h *Handler) start(input *HookInput) error {
	data, err := h.Client.Post("/api/context", map[string]any{
		"session_id": input.SessionID,
		"cwd":        input.CWD,
	})
	if err != nil {
		WriteSessionStartOutput(h.Stdout, "")
		return err
	}

	var resp struct {
		Context string `json:"context"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		WriteSessionStartOutput(h.Stdout, "")
		return fmt.Errorf("decode context: %w", err)
	}
	return WriteSessionStartOutput(h.Stdout, resp.Context)
}

// tool records the file a file tool touched. Other tools are ignored.
func (h *Handler) tool(input *HookInput) error {
	path := input.FilePath()
	if path == "" {
		return nil
	}
	_, err := h.Client.Post("/api/sessions/"+sessionPath(input)+"/files", map[string]any{
		"cwd":   input.CWD,
		"files": []string{path},
	})
	return err
}

func (h *Handler) submit(input *HookInput) error {
	if input.Prompt == "" {
		return nil
	}
	_, err := h.Client.Post("/api/messages", map[string]string{
		"source":  "user",
		"content": input.Prompt,
	})
	return err
}

// stop feeds the assistant's last message to the conversation buffer.
func (h *Handler) stop(input *HookInput) error {
	if input.StopHookActive || input.LastAssistantMessage == "" {
		return nil
	}
	_, err := h.Client.Post("/api/messages", map[string]string{
		"source":  "assistant",
		"content": input.LastAssistantMessage,
	})
	return err
}

// end closes the session, summarizing the transcript when the agent left one.
func (h *Handler) end(input *HookInput) error {
	summary := ""
	if input.TranscriptPath != "" {
		turns, err := transcript.ReadFile(input.TranscriptPath)
		if err != nil {
			reportError(h.Stderr, err)
		}
		summary = transcript.Summarize(turns)
	}
	_, err := h.Client.Post("/api/sessions/"+sessionPath(input)+"/end", map[string]string{
		"cwd":     input.CWD,
		"summary": summary,
	})
	return err
}

// sessionPath is the path segment for the agent's session. The server
// resolves unknown ids through the working directory.
func sessionPath(input *HookInput) string {
	if input.SessionID == "" {
		return "-"
	}
	return url.PathEscape(input.SessionID)
}
