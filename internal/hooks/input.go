package hooks

import (
	"encoding/json"
	"path/filepath"
)

// HookInput is the JSON the agent sends on stdin to hook handlers.
// Different events populate different subsets of the fields.
type HookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`

	// SessionStart
	Source string `json:"source,omitempty"`

	// UserPromptSubmit
	Prompt string `json:"prompt,omitempty"`

	// PostToolUse
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse json.RawMessage `json:"tool_response,omitempty"`

	// Stop
	StopHookActive       bool   `json:"stop_hook_active,omitempty"`
	LastAssistantMessage string `json:"last_assistant_message,omitempty"`

	// SessionEnd
	Reason string `json:"reason,omitempty"`
}

// fileTools touch a single file named in their input.
var fileTools = map[string]bool{
	"Read":         true,
	"Edit":         true,
	"MultiEdit":    true,
	"Write":        true,
	"NotebookEdit": true,
}

// FilePath returns the file a file tool operated on, or "" for any other
// tool. Relative paths are resolved against the working directory.
func (h *HookInput) FilePath() string {
	if !fileTools[h.ToolName] || len(h.ToolInput) == 0 {
		return ""
	}
	var in struct {
		FilePath     string `json:"file_path"`
		NotebookPath string `json:"notebook_path"`
	}
	if err := json.Unmarshal(h.ToolInput, &in); err != nil {
		return ""
	}
	path := in.FilePath
	if path == "" {
		path = in.NotebookPath
	}
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) && h.CWD != "" {
		path = filepath.Join(h.CWD, path)
	}
	return filepath.Clean(path)
}
