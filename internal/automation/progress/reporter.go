package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

// Sink receives progress events for live clients.
type Sink interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
}

// Event is the data of an AutomationProgress message.
type Event struct {
	AutomationID uuid.UUID                  `json:"automation_id"`
	RunID        uuid.UUID                  `json:"run_id"`
	Percent      int                        `json:"percent"`
	Payload      automation.ProgressPayload `json:"payload"`
}

// Reporter persists progress snapshots for one run. Writes are guarded by the
// run token and never fail the run; the percentage never moves backwards.
type Reporter struct {
	repo         repoauto.AutomationRepo
	sink         Sink
	log          *logger.Logger
	automationID uuid.UUID
	runID        uuid.UUID
	now          func() time.Time

	mu      sync.Mutex
	percent int
	stats   automation.RunStats
	lost    bool
}

func NewReporter(repo repoauto.AutomationRepo, sink Sink, baseLog *logger.Logger, automationID, runID uuid.UUID) *Reporter {
	return &Reporter{
		repo:         repo,
		sink:         sink,
		log:          baseLog.With("component", "ProgressReporter", "automation_id", automationID, "run_id", runID),
		automationID: automationID,
		runID:        runID,
		now:          time.Now,
	}
}

func (r *Reporter) SetStats(stats automation.RunStats) {
	r.mu.Lock()
	r.stats = stats
	r.mu.Unlock()
}

func (r *Reporter) Stats() automation.RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Reporter) Percent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.percent
}

// Lost reports whether a write was rejected because the run no longer owns
// the automation.
func (r *Reporter) Lost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

func (r *Reporter) Action(ctx context.Context, a Action, status automation.PayloadStatus, msg string) {
	pct, step, ok := ActionPercent(a)
	if !ok {
		r.log.Warn("Unknown progress action", "action", a)
		return
	}
	r.write(ctx, pct, step, status, msg)
}

func (r *Reporter) Item(ctx context.Context, index, total int, stage Stage, status automation.PayloadStatus, msg string) {
	pct, step := ItemPercent(index, total, stage)
	r.write(ctx, pct, step, status, msg)
}

// Payload builds a snapshot carrying the current stats.
func (r *Reporter) Payload(step automation.Step, status automation.PayloadStatus, msg string) automation.ProgressPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return automation.ProgressPayload{
		Step:      step,
		Status:    status,
		Message:   msg,
		Stats:     r.stats,
		Timestamp: r.now().UTC(),
	}
}

// Heartbeat refreshes last_progress_at without touching the snapshot, so a
// long but healthy stage is not swept as stale.
func (r *Reporter) Heartbeat(ctx context.Context) {
	if r.repo == nil {
		return
	}
	ok, err := r.repo.UpdateForRun(dbctx.New(ctx), r.automationID, r.runID, map[string]interface{}{
		"last_progress_at": r.now().UTC(),
	})
	switch {
	case err != nil:
		r.log.Warn("Failed to persist heartbeat", "error", err)
	case !ok:
		r.mu.Lock()
		r.lost = true
		r.mu.Unlock()
	}
}

func (r *Reporter) write(ctx context.Context, pct int, step automation.Step, status automation.PayloadStatus, msg string) {
	payload := r.Payload(step, status, msg)

	r.mu.Lock()
	if pct < r.percent {
		pct = r.percent
	}
	r.percent = pct
	r.mu.Unlock()

	raw, err := payload.Encode()
	if err != nil {
		r.log.Warn("Invalid progress payload", "error", err)
		return
	}
	if r.repo != nil {
		ok, err := r.repo.UpdateForRun(dbctx.New(ctx), r.automationID, r.runID, map[string]interface{}{
			"progress_percent": pct,
			"progress":         raw,
			"last_progress_at": payload.Timestamp,
		})
		switch {
		case err != nil:
			r.log.Warn("Failed to persist progress", "error", err)
		case !ok:
			r.mu.Lock()
			r.lost = true
			r.mu.Unlock()
		}
	}
	r.publish(ctx, pct, payload)
}

func (r *Reporter) publish(ctx context.Context, pct int, payload automation.ProgressPayload) {
	if r.sink == nil {
		return
	}
	ev := Event{AutomationID: r.automationID, RunID: r.runID, Percent: pct, Payload: payload}
	for _, ch := range []string{realtime.AutomationChannel(r.automationID), realtime.AllAutomationsChannel} {
		if err := r.sink.Publish(ctx, realtime.SSEMessage{Channel: ch, Event: realtime.SSEEventAutomationProgress, Data: ev}); err != nil {
			r.log.Debug("Progress publish failed", "error", err)
			return
		}
	}
}
