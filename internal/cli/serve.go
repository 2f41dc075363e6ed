package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduler",
	Long: `Run the HTTP API together with the scheduler selected by SCHEDULER:

  loop      tick the cron driver in-process every CRON_INTERVAL_SECONDS (default)
  temporal  host the durable cron workflow on TEMPORAL_ADDRESS
  none      only serve HTTP; an external scheduler calls POST /api/cron/tick

The process exits on SIGINT or SIGTERM after draining HTTP requests.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return application.Serve(ctx)
	},
}
