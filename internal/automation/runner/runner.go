// Package runner drives claimed automations from start to their final state
// and hands the slot to the next queued automation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/automation/claim"
	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/progress"
	"github.com/yungbote/reelforge-backend/internal/automation/schedule"
	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

// Executor runs the pipeline of one claimed automation.
type Executor interface {
	Run(ctx context.Context, a *types.Automation, runID uuid.UUID, rep *progress.Reporter) (automation.RunStats, error)
}

// maxDrain bounds DrainQueue so a misbehaving queue cannot pin a worker.
const maxDrain = 1000

type Runner struct {
	repo    repoauto.AutomationRepo
	coord   *claim.Coordinator
	exec    Executor
	journal *journal.Journal
	sched   *schedule.Calculator
	sink    progress.Sink
	log     *logger.Logger
	now     func() time.Time
}

func New(repo repoauto.AutomationRepo, coord *claim.Coordinator, exec Executor, j *journal.Journal, sched *schedule.Calculator, sink progress.Sink, baseLog *logger.Logger) *Runner {
	return &Runner{
		repo:    repo,
		coord:   coord,
		exec:    exec,
		journal: j,
		sched:   sched,
		sink:    sink,
		log:     baseLog.With("service", "AutomationRunner"),
		now:     time.Now,
	}
}

func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Result is what a synchronous Start produced.
type Result struct {
	Outcome claim.Outcome
	Stats   automation.RunStats
	Err     error
	// Drained counts queued automations run after this one.
	Drained int
}

// Claim is the manual trigger: schedule and enabled flag are ignored.
func (r *Runner) Claim(ctx context.Context, id uuid.UUID) (claim.Outcome, error) {
	out, err := r.coord.TryClaim(ctx, id, claim.Options{})
	if err != nil {
		return out, err
	}
	switch out.Kind {
	case claim.Queued:
		r.journal.Info(ctx, id, "queued", fmt.Sprintf("Another automation is running, queued at position %d", out.QueuePosition))
	case claim.AlreadyRunning:
		r.journal.Warn(ctx, id, "run_skipped", "Automation is already running")
	}
	r.publishStatus(ctx, out.Automation)
	return out, nil
}

// Start claims id and, when claimed, runs it and drains the queue before
// returning.
func (r *Runner) Start(ctx context.Context, id uuid.UUID) (Result, error) {
	out, err := r.Claim(ctx, id)
	if err != nil {
		return Result{Outcome: out}, err
	}
	res := Result{Outcome: out}
	if out.Kind != claim.Claimed {
		return res, nil
	}
	res.Stats, res.Err = r.RunClaimed(ctx, out.Automation, out.RunID)
	res.Drained = r.DrainQueue(ctx)
	return res, nil
}

// StartAsync claims id and runs it in the background, detached from ctx's
// cancellation. The claim outcome is returned immediately.
func (r *Runner) StartAsync(ctx context.Context, id uuid.UUID) (claim.Outcome, error) {
	out, err := r.Claim(ctx, id)
	if err != nil || out.Kind != claim.Claimed {
		return out, err
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		_, _ = r.RunClaimed(bg, out.Automation, out.RunID)
		r.DrainQueue(bg)
	}()
	return out, nil
}

// RunClaimed executes a run whose token the caller holds and writes the
// final state. A panic inside the pipeline ends the run in error.
func (r *Runner) RunClaimed(ctx context.Context, a *types.Automation, runID uuid.UUID) (stats automation.RunStats, err error) {
	if a == nil {
		return stats, fmt.Errorf("run claimed: %w", errs.ErrNotFound)
	}
	rep := progress.NewReporter(r.repo, r.sink, r.log, a.ID, runID)
	log := r.log.With("automation_id", a.ID, "run_id", runID)
	log.Info("Run started", "name", a.Name)
	r.publishStatus(ctx, a)
	started := r.now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("Run panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("run panicked: %v", p)
		}
		r.finalize(context.WithoutCancel(ctx), a.ID, runID, rep, stats, err)
		observability.Current().ObserveRun(runOutcome(err), r.now().Sub(started), stats.Processed, stats.Errors)
	}()
	stats, err = r.exec.Run(ctx, a, runID, rep)
	return stats, err
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errs.ErrRunAborted):
		return "aborted"
	default:
		return "error"
	}
}

func (r *Runner) finalize(ctx context.Context, id, runID uuid.UUID, rep *progress.Reporter, stats automation.RunStats, runErr error) {
	log := r.log.With("automation_id", id, "run_id", runID)
	rep.SetStats(stats)

	if errors.Is(runErr, errs.ErrRunAborted) {
		log.Warn("Run aborted after losing ownership", "error", runErr)
		r.journal.Warn(ctx, id, "run_aborted", "Run stopped: "+runErr.Error())
		return
	}

	row, err := r.repo.GetByID(dbctx.New(ctx), id)
	if err != nil || row == nil {
		log.Error("Failed to reload automation for finalize", "error", err)
		return
	}
	now := r.now().UTC()
	next := r.sched.Next(schedule.SpecOf(row))

	var (
		status  automation.Status
		payload automation.ProgressPayload
	)
	updates := map[string]interface{}{
		"next_run_at":      next,
		"last_progress_at": now,
		"progress_percent": 100,
	}
	if runErr == nil {
		status = automation.StatusRunning
		if !row.Enabled {
			status = automation.StatusInactive
		}
		payload = rep.Payload(automation.StepComplete, automation.PayloadSuccess,
			fmt.Sprintf("Run completed. Processed %d video(s), %d error(s).", stats.Processed, stats.Errors))
		updates["last_error"] = ""
	} else {
		status = automation.StatusError
		payload = rep.Payload(automation.StepError, automation.PayloadError, "Run failed: "+runErr.Error())
		updates["last_error"] = runErr.Error()
	}
	if raw, err := payload.Encode(); err == nil {
		updates["progress"] = raw
	}

	released, err := r.coord.Release(ctx, id, runID, status, updates)
	switch {
	case err != nil:
		log.Error("Failed to finalize run", "error", err)
		return
	case !released:
		log.Warn("Run no longer owns the automation, final state not written")
		return
	}

	if runErr == nil {
		log.Info("Run completed", "processed", stats.Processed, "errors", stats.Errors, "next_run_at", next)
		r.journal.Success(ctx, id, "run_completed", fmt.Sprintf("Completed: fetched %d, processed %d, scheduled %d, posted %d, errors %d",
			stats.Fetched, stats.Processed, stats.Scheduled, stats.Posted, stats.Errors))
	} else {
		log.Error("Run failed", "error", runErr, "next_run_at", next)
		r.journal.Error(ctx, id, "run_error", runErr.Error())
	}
	if fresh, err := r.repo.GetByID(dbctx.New(ctx), id); err == nil {
		r.publishStatus(ctx, fresh)
	}
}

// DrainQueue promotes and runs queued automations until none is left or
// the slot is taken by another worker. It returns how many ran.
func (r *Runner) DrainQueue(ctx context.Context) int {
	n := 0
	for n < maxDrain {
		if ctx.Err() != nil {
			return n
		}
		out, err := r.coord.PromoteNext(ctx)
		if err != nil {
			r.log.Warn("Queue promotion failed", "error", err)
			return n
		}
		if out.Kind != claim.Claimed {
			return n
		}
		_, _ = r.RunClaimed(ctx, out.Automation, out.RunID)
		n++
	}
	return n
}

// Stop cancels a processing or queued automation. A running executor
// notices at its next item boundary.
func (r *Runner) Stop(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := r.coord.Stop(ctx, id, "Stopped by operator")
	if err != nil {
		return false, err
	}
	if ok {
		r.journal.Warn(ctx, id, "stopped", "Automation stopped by operator")
		if row, err := r.repo.GetByID(dbctx.New(ctx), id); err == nil {
			r.publishStatus(ctx, row)
		}
	}
	return ok, nil
}

// StatusEvent is the data of an AutomationStatus message.
type StatusEvent struct {
	AutomationID    uuid.UUID         `json:"automation_id"`
	Status          automation.Status `json:"status"`
	ProgressPercent int               `json:"progress_percent"`
	NextRunAt       *time.Time        `json:"next_run_at,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
}

func (r *Runner) publishStatus(ctx context.Context, a *types.Automation) {
	if r.sink == nil || a == nil {
		return
	}
	ev := StatusEvent{
		AutomationID:    a.ID,
		Status:          a.Status,
		ProgressPercent: a.ProgressPercent,
		NextRunAt:       a.NextRunAt,
		LastError:       a.LastError,
	}
	for _, ch := range []string{realtime.AutomationChannel(a.ID), realtime.AllAutomationsChannel} {
		if err := r.sink.Publish(ctx, realtime.SSEMessage{Channel: ch, Event: realtime.SSEEventAutomationStatus, Data: ev}); err != nil {
			r.log.Debug("Status publish failed", "error", err)
			return
		}
	}
}
