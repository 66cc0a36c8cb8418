package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/app"
)

var (
	sessionsDays    int
	sessionsLimit   int
	sessionsSummary string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and close tracked sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		since := time.Now().AddDate(0, 0, -sessionsDays)
		sessions, err := a.DB.RecentSessions(cmd.Context(), since, sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tBRANCH\tFILES\tCONTINUITY")
		for _, s := range sessions {
			status := "closed"
			if s.Open() {
				status = "open"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\n",
				s.ID[:min(len(s.ID), 8)],
				s.StartTime.Local().Format("2006-01-02 15:04"),
				status,
				strings.TrimSpace(s.Branch),
				len(s.ActiveFiles),
				s.ContinuityScore)
		}
		return tw.Flush()
	},
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		closed, err := a.Tracker.End(cmd.Context(), args[0], sessionsSummary)
		if err != nil {
			return err
		}
		if !closed {
			return fmt.Errorf("session %s not found or already closed", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsDays, "days", 7, "look back this many days")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsEndCmd.Flags().StringVar(&sessionsSummary, "summary", "", "summary to store with the session")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
}
