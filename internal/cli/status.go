package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/reelforge-backend/internal/automation/cron"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

var statusLogs int

var statusCmd = &cobra.Command{
	Use:   "status [automation]",
	Short: "Show automation status",
	Long: `Without arguments, list every automation with its status and next run.
With an automation, show its live progress and recent log entries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showAutomation(cmd, args[0])
		}
		return listAutomations(cmd)
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLogs, "logs", "n", 10, "number of log entries to show")
}

func listAutomations(cmd *cobra.Command) error {
	rows, err := application.Repos.Automations.List(dbctx.New(cmd.Context()))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		printf(cmd, "No automations. Import some with: reelforge import <file.yaml>\n")
		return nil
	}
	health := cron.Health(time.Now(), rows)
	due := map[string]cron.DueState{}
	for _, h := range health.Automations {
		due[h.ID.String()] = h.DueState
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENABLED\tSTATUS\tPROGRESS\tNEXT RUN\tDUE")
	for _, a := range rows {
		next := "-"
		if a.NextRunAt != nil {
			next = a.NextRunAt.In(application.Cfg.Location).Format("2006-01-02 15:04")
		}
		state := "-"
		if d, ok := due[a.ID.String()]; ok {
			state = string(d)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d%%\t%s\t%s\n", a.Name, a.Enabled, a.Status, a.ProgressPercent, next, state)
	}
	return w.Flush()
}

func showAutomation(cmd *cobra.Command, ref string) error {
	ctx := cmd.Context()
	a, err := resolveAutomation(ctx, ref)
	if err != nil {
		return err
	}
	p := a.ProgressPayload()
	printf(cmd, "%s (%s)\n", a.Name, a.ID)
	printf(cmd, "  status:   %s, enabled %t\n", a.Status, a.Enabled)
	printf(cmd, "  progress: %d%% %s %s\n", a.ProgressPercent, p.Step, p.Message)
	if a.NextRunAt != nil {
		printf(cmd, "  next run: %s\n", a.NextRunAt.In(application.Cfg.Location).Format(time.RFC3339))
	}
	if a.LastError != "" {
		printf(cmd, "  error:    %s\n", a.LastError)
	}
	if pos, err := application.Services.Coord.QueuePosition(ctx, a.ID); err == nil && pos > 0 {
		printf(cmd, "  queued:   #%d\n", pos)
	}
	stats, err := application.Services.Tracker.Stats(ctx, a)
	if err != nil {
		return err
	}
	printf(cmd, "  rotation: cycle %d, %d processed\n", stats.Cycle, stats.Processed)

	if statusLogs <= 0 {
		return nil
	}
	logs, err := application.Repos.Logs.ListRecent(dbctx.New(ctx), a.ID, statusLogs)
	if err != nil {
		return err
	}
	printf(cmd, "\nRecent log:\n")
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		printf(cmd, "  %s  %-8s %-20s %s\n", l.CreatedAt.In(application.Cfg.Location).Format("01-02 15:04:05"), l.Status, l.Action, l.Message)
	}
	return nil
}
