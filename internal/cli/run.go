package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/reelforge-backend/internal/automation/claim"
)

var runCmd = &cobra.Command{
	Use:   "run <automation>",
	Short: "Run an automation now",
	Long: `Run an automation now, ignoring its schedule and enabled flag. When another
automation holds the run slot the automation is queued instead.

Examples:
  reelforge run sunset-clips
  reelforge run 3f6c1a52-8f1e-4a43-9d2b-0c1f5e2d7a10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := resolveAutomation(ctx, args[0])
		if err != nil {
			return err
		}
		res, err := application.Services.Runner.Start(ctx, a.ID)
		if err != nil {
			return err
		}
		switch res.Outcome.Kind {
		case claim.Queued:
			printf(cmd, "%s queued at position %d\n", a.Name, res.Outcome.QueuePosition)
			return nil
		case claim.AlreadyRunning:
			return fmt.Errorf("%s is already running", a.Name)
		case claim.NotEligible:
			return fmt.Errorf("%s cannot be started (status %s)", a.Name, a.Status)
		}
		s := res.Stats
		printf(cmd, "%s finished: fetched %d, processed %d, scheduled %d, posted %d, errors %d\n",
			a.Name, s.Fetched, s.Processed, s.Scheduled, s.Posted, s.Errors)
		if res.Drained > 0 {
			printf(cmd, "ran %d queued automation(s) afterwards\n", res.Drained)
		}
		return res.Err
	},
}
