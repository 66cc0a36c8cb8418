package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/app"
)

var purgeDays int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions and memories older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := purgeDays
		if days <= 0 {
			days = cfg.Retention.Days
		}
		if days <= 0 {
			return fmt.Errorf("retention is disabled; pass --days")
		}

		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Engine.Purge(cmd.Context(), time.Now().AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions and %d memories older than %d days\n",
			res.Sessions, res.Memories, days)
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "age in days (default: retention.days)")
}
