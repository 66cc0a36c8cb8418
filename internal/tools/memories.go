package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/recall/internal/app"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
)

const maxSearchLimit = 20

// RecordTool handles the record_memory MCP tool.
type RecordTool struct {
	app *app.App
}

func NewRecordTool(a *app.App) *RecordTool {
	return &RecordTool{app: a}
}

func (t *RecordTool) Definition() mcp.Tool {
	names := make([]string, 0, len(memory.Kinds()))
	for _, k := range memory.Kinds() {
		names = append(names, k.String())
	}

	return mcp.NewTool("record_memory",
		mcp.WithDescription("Remember a decision, bug fix, rejected approach, TODO or architectural note for future sessions."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Kind of memory: "+strings.Join(names, ", ")),
			mcp.Enum(names...),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("What to remember, in one or two sentences"),
		),
		mcp.WithString("rationale",
			mcp.Description("Why, if it is not obvious"),
		),
		mcp.WithArray("files",
			mcp.Description("Files the memory is about"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("tags",
			mcp.Description("Free-form tags"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("branch",
			mcp.Description("Git branch the work happened on"),
		),
	)
}

func (t *RecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := memory.ParseKind(req.GetString("kind", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content := strings.TrimSpace(req.GetString("content", ""))
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	m := &memory.Memory{
		Kind:      kind,
		Content:   content,
		Rationale: strings.TrimSpace(req.GetString("rationale", "")),
		Files:     stringsArg(req, "files"),
		Tags:      stringsArg(req, "tags"),
		Branch:    req.GetString("branch", ""),
	}
	if err := t.app.Engine.RecordMemory(ctx, m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("record failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded %s %s", kind, m.ID)), nil
}

// SearchTool handles the search_memories MCP tool.
type SearchTool struct {
	app *app.App
}

func NewSearchTool(a *app.App) *SearchTool {
	return &SearchTool{app: a}
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_memories",
		mcp.WithDescription("Search remembered context from past sessions by meaning."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keywords"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 20)"),
		),
	)
}

func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	limit := min(intArg(req, "limit", 10), maxSearchLimit)

	results, err := t.app.Engine.Search(ctx, query, limit)
	if errors.Is(err, engine.ErrNoEmbedder) {
		return mcp.NewToolResultError("search is unavailable: no embedder configured"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No memories found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(results))
	for i, m := range results {
		fmt.Fprintf(&b, "[%d] %s (%s, %.2f) %s\n", i+1, m.ID, m.Kind, m.Similarity, m.Timestamp.Format("2006-01-02"))
		fmt.Fprintf(&b, "    %s\n", m.Content)
		if m.Rationale != "" {
			fmt.Fprintf(&b, "    why: %s\n", m.Rationale)
		}
		if len(m.Files) > 0 {
			fmt.Fprintf(&b, "    files: %s\n", strings.Join(m.Files, ", "))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
