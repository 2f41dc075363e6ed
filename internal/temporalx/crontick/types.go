package crontick

import "time"

const (
	WorkflowName = "reelforge_cron"
	ActivityTick = "reelforge_cron_tick"
	// SignalTickNow wakes the workflow before its interval elapses.
	SignalTickNow = "cron_tick_now"

	DefaultWorkflowID = "reelforge-cron"
)

// Input configures the cron loop. It is carried across continue-as-new.
type Input struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (in Input) Interval() time.Duration {
	if in.IntervalSeconds < 10 {
		return time.Minute
	}
	return time.Duration(in.IntervalSeconds) * time.Second
}

// TickResult is the activity's summary of one cron pass.
type TickResult struct {
	StartedAt  time.Time `json:"started_at"`
	Reset      int       `json:"reset"`
	Promoted   int       `json:"promoted"`
	Synced     int       `json:"synced"`
	SyncFailed int       `json:"sync_failed"`
	Runs       int       `json:"runs"`
	Failed     int       `json:"failed"`
}
