package crontick

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	continueTickLimit    = 500
	continueHistoryLimit = 10000
)

// Workflow runs the cron tick activity forever, one pass per interval. A
// failed pass is logged and the loop continues; the next tick retries.
func Workflow(ctx workflow.Context, in Input) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	log := workflow.GetLogger(ctx)
	tickNow := workflow.GetSignalChannel(ctx, SignalTickNow)

	for ticks := 1; ; ticks++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick).Get(ctx, &out); err != nil {
			log.Warn("Cron tick failed", "error", err)
		} else if out.Runs > 0 || out.Reset > 0 {
			log.Info("Cron tick done", "runs", out.Runs, "failed", out.Failed, "reset", out.Reset, "promoted", out.Promoted)
		}

		waitForSignalOrTimer(ctx, tickNow, in.Interval())
		if err := ctx.Err(); err != nil {
			return err
		}
		if shouldContinueAsNew(ctx, ticks) {
			return workflow.NewContinueAsNewError(ctx, Workflow, in)
		}
	}
}

func waitForSignalOrTimer(ctx workflow.Context, ch workflow.ReceiveChannel, d time.Duration) {
	timerCtx, cancel := workflow.WithCancel(ctx)
	defer cancel()
	timer := workflow.NewTimer(timerCtx, d)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var v any
		c.Receive(ctx, &v)
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(ctx)
}

func shouldContinueAsNew(ctx workflow.Context, ticks int) bool {
	if ticks >= continueTickLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && info.GetCurrentHistoryLength() >= continueHistoryLimit
}
