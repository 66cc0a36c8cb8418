package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:       "hook <event>",
	Short:     "Handle agent hook events (start, tool, submit, stop, end)",
	Long:      "Reads the hook JSON on stdin and forwards it to the recall server. Always exits 0.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: hooks.Events,
	// A broken config must not fail the agent; fall back to defaults.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "recall hook: %v\n", err)
			d := config.Default()
			cfg = &d
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		h := &hooks.Handler{
			Client: hooks.NewClient(cfg.Hooks.Timeout),
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		}
		h.Handle(args[0], os.Stdin)
	},
}
