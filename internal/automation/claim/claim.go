package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type Kind string

const (
	Claimed        Kind = "claimed"
	AlreadyRunning Kind = "already_running"
	Queued         Kind = "queued"
	NotEligible    Kind = "not_eligible"
)

type Outcome struct {
	Kind          Kind
	RunID         uuid.UUID
	QueuePosition int
	// Automation is the row as it stands after the claim attempt.
	Automation *types.Automation
}

// Options restrict which automations may be claimed. The zero value is the
// manual trigger: any automation that is not already busy.
type Options struct {
	RequireEnabled bool
	// DueAt additionally requires next_run_at to be unset or <= DueAt.
	DueAt *time.Time
}

var busy = []automation.Status{automation.StatusProcessing, automation.StatusQueued}

// nextQueueSeq keeps FIFO order stable even when queued_at values collide.
const nextQueueSeq = "(SELECT COALESCE(MAX(queue_seq), 0) + 1 FROM automation)"

// Coordinator serializes runs across workers through conditional writes on
// the automation row. At most one automation is processing at a time; the
// database enforces it with a partial unique index, so the coordinator never
// takes locks. Calls must not run inside a caller transaction.
type Coordinator struct {
	repo repoauto.AutomationRepo
	log  *logger.Logger
	now  func() time.Time
}

func New(repo repoauto.AutomationRepo, baseLog *logger.Logger) *Coordinator {
	return &Coordinator{
		repo: repo,
		log:  baseLog.With("component", "ClaimCoordinator"),
		now:  time.Now,
	}
}

// WithClock overrides the clock used for timestamps.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *Coordinator) TryClaim(ctx context.Context, id uuid.UUID, opts Options) (Outcome, error) {
	dbc := dbctx.New(ctx)
	now := c.now().UTC()
	runID := uuid.New()

	cond := repoauto.Condition{
		NotInStatus:    busy,
		RequireEnabled: opts.RequireEnabled,
		DueAt:          opts.DueAt,
	}
	// A fresh claim never overtakes automations already waiting in the queue.
	fresh := cond
	fresh.QueueEmpty = true
	ok, err := c.repo.TryTransition(dbc, id, fresh, claimUpdates(runID, now, "Run claimed"))
	switch {
	case err != nil && errs.IsUniqueViolation(err):
		return c.enqueue(ctx, id, cond)
	case err != nil:
		return Outcome{}, fmt.Errorf("claim automation %s: %w", id, errors.Join(errs.ErrClaimLost, err))
	case ok:
		row, err := c.repo.GetByID(dbc, id)
		if err != nil {
			return Outcome{}, err
		}
		c.log.Info("Claimed automation", "automation_id", id, "run_id", runID)
		return Outcome{Kind: Claimed, RunID: runID, Automation: row}, nil
	}
	waiting, err := c.repo.OldestQueued(dbc)
	if err != nil {
		return Outcome{}, fmt.Errorf("claim automation %s: %w", id, errors.Join(errs.ErrClaimLost, err))
	}
	if waiting != nil && waiting.ID != id {
		return c.enqueue(ctx, id, cond)
	}
	return c.explainMiss(ctx, id)
}

func (c *Coordinator) enqueue(ctx context.Context, id uuid.UUID, cond repoauto.Condition) (Outcome, error) {
	dbc := dbctx.New(ctx)
	now := c.now().UTC()
	payload, _ := automation.ProgressPayload{
		Step:      automation.StepInit,
		Status:    automation.PayloadInfo,
		Message:   "Waiting for another automation to finish",
		Timestamp: now,
	}.Encode()
	ok, err := c.repo.TryTransition(dbc, id, cond, map[string]interface{}{
		"status":           string(automation.StatusQueued),
		"queued_at":        now,
		"queue_seq":        gorm.Expr(nextQueueSeq),
		"progress_percent": 0,
		"progress":         payload,
		"last_progress_at": now,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("queue automation %s: %w", id, errors.Join(errs.ErrClaimLost, err))
	}
	if !ok {
		return c.explainMiss(ctx, id)
	}
	pos, err := c.QueuePosition(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	row, err := c.repo.GetByID(dbc, id)
	if err != nil {
		return Outcome{}, err
	}
	c.log.Info("Queued automation", "automation_id", id, "position", pos)
	return Outcome{Kind: Queued, QueuePosition: pos, Automation: row}, nil
}

func (c *Coordinator) explainMiss(ctx context.Context, id uuid.UUID) (Outcome, error) {
	row, err := c.repo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return Outcome{}, err
	}
	if row == nil {
		return Outcome{}, fmt.Errorf("automation %s: %w", id, errs.ErrNotFound)
	}
	if row.Status.Busy() {
		out := Outcome{Kind: AlreadyRunning, Automation: row}
		if row.Status == automation.StatusQueued {
			if pos, err := c.QueuePosition(ctx, id); err == nil {
				out.QueuePosition = pos
			}
		}
		return out, nil
	}
	return Outcome{Kind: NotEligible, Automation: row}, nil
}

// PromoteNext claims the oldest queued automation. It returns a zero Outcome
// when nothing is queued or the slot is still taken.
func (c *Coordinator) PromoteNext(ctx context.Context) (Outcome, error) {
	dbc := dbctx.New(ctx)
	for attempt := 0; attempt < 5; attempt++ {
		next, err := c.repo.OldestQueued(dbc)
		if err != nil {
			return Outcome{}, err
		}
		if next == nil {
			return Outcome{}, nil
		}
		runID := uuid.New()
		ok, err := c.repo.TryTransition(dbc, next.ID, repoauto.Condition{
			InStatus: []automation.Status{automation.StatusQueued},
		}, claimUpdates(runID, c.now().UTC(), "Promoted from queue"))
		if err != nil {
			if errs.IsUniqueViolation(err) {
				return Outcome{}, nil
			}
			return Outcome{}, fmt.Errorf("promote automation %s: %w", next.ID, errors.Join(errs.ErrClaimLost, err))
		}
		if !ok {
			// stopped or promoted by another worker in between
			continue
		}
		row, err := c.repo.GetByID(dbc, next.ID)
		if err != nil {
			return Outcome{}, err
		}
		c.log.Info("Promoted queued automation", "automation_id", next.ID, "run_id", runID)
		return Outcome{Kind: Claimed, RunID: runID, Automation: row}, nil
	}
	return Outcome{}, nil
}

// QueuePosition is 1-based for queued automations and 0 otherwise.
func (c *Coordinator) QueuePosition(ctx context.Context, id uuid.UUID) (int, error) {
	dbc := dbctx.New(ctx)
	row, err := c.repo.GetByID(dbc, id)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, fmt.Errorf("automation %s: %w", id, errs.ErrNotFound)
	}
	if row.Status != automation.StatusQueued {
		return 0, nil
	}
	ahead, err := c.repo.CountQueuedAhead(dbc, row)
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// Release moves a run out of processing. It is a no-op when runID no longer
// owns the automation.
func (c *Coordinator) Release(ctx context.Context, id, runID uuid.UUID, status automation.Status, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = string(status)
	updates["run_id"] = nil
	updates["queued_at"] = nil
	return c.repo.UpdateForRun(dbctx.New(ctx), id, runID, updates)
}

// Owns reports whether runID still holds the processing slot of id.
func (c *Coordinator) Owns(ctx context.Context, id, runID uuid.UUID) (bool, error) {
	row, err := c.repo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return false, err
	}
	if row == nil || row.RunID == nil {
		return false, nil
	}
	return row.Status == automation.StatusProcessing && *row.RunID == runID, nil
}

// Stop cancels a processing or queued automation.
func (c *Coordinator) Stop(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	now := c.now().UTC()
	if reason == "" {
		reason = "Stopped by operator"
	}
	payload, _ := automation.ProgressPayload{
		Step:      automation.StepError,
		Status:    automation.PayloadWarning,
		Message:   reason,
		Timestamp: now,
	}.Encode()
	return c.repo.TryTransition(dbctx.New(ctx), id, repoauto.Condition{InStatus: busy}, map[string]interface{}{
		"status":           string(automation.StatusStopped),
		"run_id":           nil,
		"queued_at":        nil,
		"progress":         payload,
		"last_progress_at": now,
	})
}

// SweepStale resets processing automations without progress since
// now-threshold and returns the rows it reset.
func (c *Coordinator) SweepStale(ctx context.Context, threshold time.Duration) ([]*types.Automation, error) {
	dbc := dbctx.New(ctx)
	now := c.now().UTC()
	stale, err := c.repo.ListStale(dbc, now.Add(-threshold))
	if err != nil {
		return nil, err
	}
	var reset []*types.Automation
	for _, a := range stale {
		cond := repoauto.Condition{InStatus: []automation.Status{automation.StatusProcessing}}
		if a.RunID != nil {
			cond.RunID = a.RunID
		}
		ok, err := c.repo.TryTransition(dbc, a.ID, cond, map[string]interface{}{
			"status":           string(automation.StatusInactive),
			"run_id":           nil,
			"progress_percent": 0,
			"progress":         nil,
			"last_progress_at": nil,
			"queued_at":        nil,
		})
		if err != nil {
			return reset, fmt.Errorf("reset stale automation %s: %w", a.ID, err)
		}
		if ok {
			c.log.Warn("Reset stale automation", "automation_id", a.ID, "last_progress_at", a.LastProgressAt)
			reset = append(reset, a)
		}
	}
	return reset, nil
}

func claimUpdates(runID uuid.UUID, now time.Time, msg string) map[string]interface{} {
	payload, _ := automation.ProgressPayload{
		Step:      automation.StepInit,
		Status:    automation.PayloadInfo,
		Message:   msg,
		Timestamp: now,
	}.Encode()
	return map[string]interface{}{
		"status":           string(automation.StatusProcessing),
		"run_id":           runID,
		"progress_percent": 0,
		"progress":         payload,
		"last_progress_at": now,
		"last_run_at":      now,
		"last_error":       "",
		"queued_at":        nil,
		"queue_seq":        0,
	}
}
