package cli

import (
	"github.com/spf13/cobra"
)

var (
	rotationClear bool
	rotationCycle int
)

var rotationCmd = &cobra.Command{
	Use:   "rotation <automation>",
	Short: "Show or clear rotation history",
	Long: `Show how many videos the automation processed in its current rotation
cycle. With --clear, forget that history so the videos become eligible again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := resolveAutomation(ctx, args[0])
		if err != nil {
			return err
		}
		tracker := application.Services.Tracker
		if rotationClear {
			n, err := tracker.ClearCycle(ctx, a, rotationCycle)
			if err != nil {
				return err
			}
			cycle := rotationCycle
			if cycle == 0 {
				cycle = a.Cycle()
			}
			printf(cmd, "%s: cleared %d record(s) from cycle %d\n", a.Name, n, cycle)
			return nil
		}
		stats, err := tracker.Stats(ctx, a)
		if err != nil {
			return err
		}
		printf(cmd, "%s: cycle %d, %d processed (rotation enabled %t, auto reset %t)\n",
			a.Name, stats.Cycle, stats.Processed, a.RotationEnabled, a.RotationAutoReset)
		return nil
	},
}

func init() {
	rotationCmd.Flags().BoolVar(&rotationClear, "clear", false, "clear the processed history")
	rotationCmd.Flags().IntVar(&rotationCycle, "cycle", 0, "cycle to clear (default current)")
}
