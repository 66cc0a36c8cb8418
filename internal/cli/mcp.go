package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/app"
	"github.com/lazypower/recall/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve recall tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return tools.ServeStdio(a, VersionString())
	},
}
