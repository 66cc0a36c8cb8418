package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// SessionStartOutput is the JSON the agent expects on stdout from the
// SessionStart hook.
type SessionStartOutput struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

// WriteSessionStartOutput writes the SessionStart response.
func WriteSessionStartOutput(w io.Writer, context string) error {
	out := SessionStartOutput{}
	out.HookSpecificOutput.HookEventName = "SessionStart"
	out.HookSpecificOutput.AdditionalContext = context
	return json.NewEncoder(w).Encode(out)
}

// reportError logs to stderr. Hooks must never fail the agent.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "recall hook: %v\n", err)
}
