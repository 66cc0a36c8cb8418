package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/app"
)

var (
	injectFiles   []string
	injectBranch  string
	injectForce   bool
	injectJSON    bool
	injectSession string
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Evaluate an injection for the given files against the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		cwd, _ := os.Getwd()
		resp := a.Context(cmd.Context(), app.ContextRequest{
			SessionID: injectSession,
			Files:     injectFiles,
			Branch:    injectBranch,
			Cwd:       cwd,
			Force:     injectForce,
		})

		out := cmd.OutOrStdout()
		if injectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		if !resp.Injected {
			fmt.Fprintf(out, "no injection (%s)\n", resp.Reason)
			return nil
		}
		fmt.Fprintln(out, resp.Context)
		if m := resp.Metrics; m != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trigger=%s memories=%d tokens=%d efficiency=%.2f confidence=%.2f\n",
				resp.Trigger, m.MemoriesIncluded, m.TokenCount, m.Efficiency, m.Confidence)
		}
		return nil
	},
}

func init() {
	injectCmd.Flags().StringSliceVarP(&injectFiles, "files", "f", nil, "files being worked on")
	injectCmd.Flags().StringVar(&injectBranch, "branch", "", "current branch (default: read from git)")
	injectCmd.Flags().BoolVar(&injectForce, "force", false, "skip cooldown and confidence gates")
	injectCmd.Flags().BoolVar(&injectJSON, "json", false, "print the full response as JSON")
	injectCmd.Flags().StringVar(&injectSession, "session", "", "session id")
}
