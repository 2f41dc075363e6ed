package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Migrate(); err != nil {
			return err
		}
		printf(cmd, "Schema up to date\n")
		return nil
	},
}
