package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/reelforge-backend/internal/automation/defs"
)

var exportOut string

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>...",
	Short: "Create or update automations from definition files",
	Long: `Create or update automations from YAML definition files. Automations are
matched by name; existing ones keep their run state and rotation cycle.

Example file:

  automations:
    - name: sunset-clips
      enabled: true
      schedule: {type: daily, hour: 18}
      source: {kind: bunny, days_filter: 14, per_run: 3}
      publish: {enabled: true, accounts: [spc_123], mode: offset, offset_minutes: 30}
      rotation: {enabled: true, auto_reset: true}`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			f, err := defs.ParseFile(path)
			if err != nil {
				return err
			}
			res, err := defs.Import(cmd.Context(), application.Repos.Automations, f, log)
			if err != nil {
				return err
			}
			printf(cmd, "%s: created [%s], updated [%s]\n", path, strings.Join(res.Created, ", "), strings.Join(res.Updated, ", "))
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every automation as a definition file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" || exportOut == "-" {
			return defs.Export(cmd.Context(), application.Repos.Automations, cmd.OutOrStdout())
		}
		fh, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		if err := defs.Export(cmd.Context(), application.Repos.Automations, fh); err != nil {
			_ = fh.Close()
			return err
		}
		return fh.Close()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "-", "output file")
}
