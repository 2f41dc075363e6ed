package crontick

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/reelforge-backend/internal/automation/cron"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// Ticker is the cron pass the activity drives.
type Ticker interface {
	Tick(ctx context.Context) (cron.TickReport, error)
}

type Activities struct {
	Log    *logger.Logger
	Driver Ticker
}

func (a *Activities) Tick(ctx context.Context) (TickResult, error) {
	if a == nil || a.Driver == nil {
		return TickResult{}, fmt.Errorf("crontick: activity not configured")
	}
	stopHB := startHeartbeat(ctx)
	defer stopHB()

	report, err := a.Driver.Tick(ctx)
	res := Summarize(report)
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("Cron tick activity failed", "error", err)
		}
		return res, err
	}
	return res, nil
}

// Summarize keeps the workflow history small: counts only.
func Summarize(r cron.TickReport) TickResult {
	out := TickResult{
		StartedAt:  r.StartedAt,
		Reset:      len(r.Reset),
		Promoted:   r.Promoted,
		Synced:     r.Synced,
		SyncFailed: r.SyncFailed,
		Runs:       len(r.Runs),
	}
	for _, run := range r.Runs {
		if run.Error != "" {
			out.Failed++
		}
	}
	return out
}

// startHeartbeat keeps long runs alive; outside an activity it is a no-op.
func startHeartbeat(ctx context.Context) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
