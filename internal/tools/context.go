package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/recall/internal/app"
	"github.com/lazypower/recall/internal/inject"
)

// ContextTool handles the get_smart_context MCP tool.
type ContextTool struct {
	app *app.App
}

func NewContextTool(a *app.App) *ContextTool {
	return &ContextTool{app: a}
}

func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_smart_context",
		mcp.WithDescription(
			"Get relevant context from past sessions for the files you are working on. "+
				"Returns nothing when injection is not warranted, which saves tokens.",
		),
		mcp.WithArray("current_files",
			mcp.Description("Files currently being worked on"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("force",
			mcp.Description("Inject even when the usual triggers and cooldown say no"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory of the project, used for session and branch tracking"),
		),
		mcp.WithString("session_id",
			mcp.Description("Client session id, if any"),
		),
	)
}

func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp := t.app.Context(ctx, app.ContextRequest{
		SessionID: req.GetString("session_id", ""),
		Files:     stringsArg(req, "current_files"),
		Cwd:       req.GetString("cwd", ""),
		Force:     boolArg(req, "force", false),
	})

	if !resp.Injected {
		return mcp.NewToolResultText(noInjectionText(resp.Reason)), nil
	}

	var b strings.Builder
	b.WriteString(resp.Context)
	if m := resp.Metrics; m != nil {
		fmt.Fprintf(&b, "\n\n---\n%d memories, ~%d tokens, efficiency %.2f, confidence %.2f (trigger: %s)\n",
			m.MemoriesIncluded, m.TokenCount, m.Efficiency, m.Confidence, resp.Trigger)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func noInjectionText(r inject.Reason) string {
	switch r {
	case inject.ReasonCooldown:
		return "No context injection needed: context was provided recently."
	case inject.ReasonNoTrigger:
		return "No context injection needed: nothing changed enough to warrant it."
	case inject.ReasonNoCandidates:
		return "No relevant past context found for these files."
	case inject.ReasonLowConfidence:
		return "Past context found, but not confident enough that it is relevant."
	default:
		return "No context injection needed."
	}
}
