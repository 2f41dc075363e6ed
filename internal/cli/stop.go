package cli

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <automation>",
	Short: "Stop a processing or queued automation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := resolveAutomation(ctx, args[0])
		if err != nil {
			return err
		}
		ok, err := application.Services.Runner.Stop(ctx, a.ID)
		if err != nil {
			return err
		}
		if !ok {
			printf(cmd, "%s is not running (status %s)\n", a.Name, a.Status)
			return nil
		}
		printf(cmd, "%s stopped\n", a.Name)
		return nil
	},
}
