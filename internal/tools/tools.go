// Package tools exposes recall to MCP clients.
//
// Each tool is a struct holding the wired application, a Definition that
// returns the mcp.Tool schema and a Handle that serves calls. Failures are
// reported as tool errors, never as protocol errors.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lazypower/recall/internal/app"
)

const instructions = `recall remembers decisions, bug fixes, rejected approaches and TODOs
across coding sessions.

Call get_smart_context when starting work on a set of files; it returns
relevant past context only when it is worth the tokens. Call record_memory
after making a decision worth keeping. Use search_memories to look up
something specific.`

// NewServer creates an MCP server with every recall tool registered.
func NewServer(a *app.App, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"recall",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	ctxTool := NewContextTool(a)
	s.AddTool(ctxTool.Definition(), ctxTool.Handle)

	recordTool := NewRecordTool(a)
	s.AddTool(recordTool.Definition(), recordTool.Handle)

	searchTool := NewSearchTool(a)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	return s
}

// ServeStdio runs the MCP server over stdin and stdout until the client
// disconnects.
func ServeStdio(a *app.App, version string) error {
	return server.ServeStdio(NewServer(a, version))
}

// intArg extracts an integer argument, returning def when the key is missing
// or not a number. JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, def int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, def bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return def
	}
	return v
}

// stringsArg extracts a string array argument, skipping non-string and empty
// entries.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
