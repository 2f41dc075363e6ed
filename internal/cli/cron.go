package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var cronJSON bool

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Run one cron tick and exit",
	Long: `Run one cron tick: reset stale runs, sync post statuses, promote the
queue and run every due automation. Meant for crontab, e.g.

  * * * * * reelforge cron`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.Services.Cron.Tick(cmd.Context())
		if err != nil {
			return err
		}
		if cronJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printf(cmd, "Stale resets: %d, promoted: %d, posts synced: %d (failed %d)\n",
			len(report.Reset), report.Promoted, report.Synced, report.SyncFailed)
		for _, r := range report.Runs {
			line := string(r.Outcome)
			if r.Error != "" {
				line += ": " + r.Error
			}
			printf(cmd, "  %-24s %s (processed %d, errors %d)\n", r.Name, line, r.Stats.Processed, r.Stats.Errors)
		}
		return nil
	},
}

func init() {
	cronCmd.Flags().BoolVar(&cronJSON, "json", false, "print the tick report as JSON")
}
