// Package cron is the periodic driver: it heals stale runs, drains the
// queue, reconciles published posts and starts due automations.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/automation/claim"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/runner"
	"github.com/yungbote/reelforge-backend/internal/automation/schedule"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

const (
	DefaultStaleAfter = time.Hour
	syncBatch         = 20
	syncTimeout       = 30 * time.Second
)

type Config struct {
	StaleAfter time.Duration
	// MaxDue caps how many due automations one tick considers.
	MaxDue int
}

type Driver struct {
	repo      repoauto.AutomationRepo
	posts     repoauto.OutboundPostRepo
	coord     *claim.Coordinator
	runner    *runner.Runner
	publisher stages.Publisher
	journal   *journal.Journal
	sched     *schedule.Calculator
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

func New(
	repo repoauto.AutomationRepo,
	posts repoauto.OutboundPostRepo,
	coord *claim.Coordinator,
	run *runner.Runner,
	publisher stages.Publisher,
	j *journal.Journal,
	sched *schedule.Calculator,
	cfg Config,
	baseLog *logger.Logger,
) *Driver {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.MaxDue <= 0 {
		cfg.MaxDue = 100
	}
	return &Driver{
		repo:      repo,
		posts:     posts,
		coord:     coord,
		runner:    run,
		publisher: publisher,
		journal:   j,
		sched:     sched,
		cfg:       cfg,
		log:       baseLog.With("service", "CronDriver"),
		now:       time.Now,
	}
}

func (d *Driver) WithClock(now func() time.Time) *Driver {
	d.now = now
	return d
}

// RunSummary describes what a tick did with one automation.
type RunSummary struct {
	AutomationID uuid.UUID           `json:"automation_id"`
	Name         string              `json:"name"`
	Outcome      claim.Kind          `json:"outcome"`
	Stats        automation.RunStats `json:"stats"`
	Error        string              `json:"error,omitempty"`
}

type TickReport struct {
	StartedAt  time.Time    `json:"started_at"`
	Reset      []uuid.UUID  `json:"reset,omitempty"`
	Promoted   int          `json:"promoted"`
	Synced     int          `json:"synced"`
	SyncFailed int          `json:"sync_failed"`
	Runs       []RunSummary `json:"runs,omitempty"`
}

// Tick performs one cron pass. Failures of individual steps are logged and
// reported; the error return is reserved for failures that stop the tick.
func (d *Driver) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{StartedAt: d.now().UTC()}
	d.log.Info("Cron tick started")

	// a. heal stuck runs, then let queued automations take the free slot
	reset, err := d.coord.SweepStale(ctx, d.cfg.StaleAfter)
	if err != nil {
		d.log.Warn("Stale sweep failed", "error", err)
	}
	for _, a := range reset {
		report.Reset = append(report.Reset, a.ID)
		since := "never"
		if a.LastProgressAt != nil {
			since = a.LastProgressAt.UTC().Format(time.RFC3339)
		} else if a.LastRunAt != nil {
			since = a.LastRunAt.UTC().Format(time.RFC3339)
		}
		d.journal.Warn(ctx, a.ID, "stale_reset", "Run reset after no progress since "+since)
	}
	report.Promoted = d.runner.DrainQueue(ctx)

	// b. reconcile posts submitted earlier
	report.Synced, report.SyncFailed = d.SyncPosts(ctx)

	// c. due automations
	if err := ctx.Err(); err != nil {
		return report, err
	}
	now := d.now().UTC()
	due, err := d.repo.ListDue(dbctx.New(ctx), now, d.cfg.MaxDue)
	if err != nil {
		return report, fmt.Errorf("list due automations: %w", err)
	}
	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		summary := RunSummary{AutomationID: a.ID, Name: a.Name}
		dueAt := d.now().UTC()
		out, err := d.coord.TryClaim(ctx, a.ID, claim.Options{RequireEnabled: true, DueAt: &dueAt})
		if err != nil {
			summary.Error = err.Error()
			d.fail(ctx, a.ID, err)
			report.Runs = append(report.Runs, summary)
			continue
		}
		summary.Outcome = out.Kind
		if out.Kind == claim.Claimed {
			d.log.Info("Running due automation", "automation_id", a.ID, "name", a.Name)
			stats, runErr := d.runner.RunClaimed(ctx, out.Automation, out.RunID)
			summary.Stats = stats
			if runErr != nil {
				summary.Error = runErr.Error()
				d.journal.Error(ctx, a.ID, "cron_error", runErr.Error())
			}
			report.Promoted += d.runner.DrainQueue(ctx)
		}
		report.Runs = append(report.Runs, summary)
	}
	observability.Current().IncCronTick(len(report.Reset))
	d.log.Info("Cron tick finished", "reset", len(report.Reset), "promoted", report.Promoted, "synced", report.Synced, "runs", len(report.Runs))
	return report, nil
}

// fail records a per-automation failure that happened outside a run. The
// status only changes when the automation is not busy.
func (d *Driver) fail(ctx context.Context, id uuid.UUID, cause error) {
	d.log.Error("Cron failed for automation", "automation_id", id, "error", cause)
	d.journal.Error(ctx, id, "cron_error", cause.Error())
	row, err := d.repo.GetByID(dbctx.New(ctx), id)
	if err != nil || row == nil {
		return
	}
	next := d.sched.Next(schedule.SpecOf(row))
	_, err = d.repo.TryTransition(dbctx.New(ctx), id, repoauto.Condition{
		NotInStatus: []automation.Status{automation.StatusProcessing, automation.StatusQueued},
	}, map[string]interface{}{
		"status":      string(automation.StatusError),
		"last_error":  cause.Error(),
		"next_run_at": next,
	})
	if err != nil {
		d.log.Warn("Failed to record cron error state", "automation_id", id, "error", err)
	}
}

// MapRemoteStatus folds a provider post status into ours. Unknown statuses
// map to "" and leave the post untouched.
func MapRemoteStatus(remote string) automation.PostStatus {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "published", "posted", "completed", "success", "processed":
		return automation.PostPosted
	case "failed", "error", "cancelled", "canceled":
		return automation.PostFailed
	default:
		return ""
	}
}

// SyncPosts polls the provider for posts still in flight.
func (d *Driver) SyncPosts(ctx context.Context) (synced, failed int) {
	if d.publisher == nil || d.posts == nil {
		return 0, 0
	}
	posts, err := d.posts.ListForSync(dbctx.New(ctx), syncBatch)
	if err != nil {
		d.log.Warn("Failed to list posts for sync", "error", err)
		return 0, 0
	}
	for _, p := range posts {
		if ctx.Err() != nil {
			return synced, failed
		}
		sctx, cancel := context.WithTimeout(ctx, syncTimeout)
		remote, err := d.publisher.PostStatus(sctx, p.ExternalPostID)
		cancel()
		if err != nil {
			failed++
			d.log.Warn("Post status check failed", "post_id", p.ExternalPostID, "error", err)
			continue
		}
		next := MapRemoteStatus(remote)
		if next == "" || next == p.Status {
			continue
		}
		results, _ := json.Marshal(map[string]string{"remote_status": remote})
		if err := d.posts.UpdateStatus(dbctx.New(ctx), p.ID, next, results, d.now().UTC()); err != nil {
			failed++
			d.log.Warn("Failed to update post status", "post_id", p.ExternalPostID, "error", err)
			continue
		}
		synced++
		d.log.Info("Synced post", "post_id", p.ExternalPostID, "from", p.Status, "to", next)
	}
	return synced, failed
}

type DueState string

const (
	DueNow         DueState = "due"
	DueScheduled   DueState = "scheduled"
	DueMissingNext DueState = "missing_next_run"
)

type HealthEntry struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Enabled      bool              `json:"enabled"`
	Status       automation.Status `json:"status"`
	NextRunAt    *time.Time        `json:"next_run_at,omitempty"`
	LastRunAt    *time.Time        `json:"last_run_at,omitempty"`
	DueState     DueState          `json:"due_state"`
	DueInSeconds *int64            `json:"due_in_seconds,omitempty"`
}

type HealthReport struct {
	ServerTime         time.Time     `json:"server_time_utc"`
	EnabledAutomations int           `json:"enabled_automations"`
	DueNow             int           `json:"due_now"`
	Automations        []HealthEntry `json:"automations"`
}

// Health summarizes when each enabled automation is next expected to run.
func Health(now time.Time, rows []*types.Automation) HealthReport {
	now = now.UTC()
	rep := HealthReport{ServerTime: now, Automations: []HealthEntry{}}
	for _, a := range rows {
		if a == nil || !a.Enabled {
			continue
		}
		e := HealthEntry{
			ID:        a.ID,
			Name:      a.Name,
			Enabled:   a.Enabled,
			Status:    a.Status,
			NextRunAt: a.NextRunAt,
			LastRunAt: a.LastRunAt,
			DueState:  DueMissingNext,
		}
		if a.NextRunAt != nil {
			secs := int64(a.NextRunAt.Sub(now) / time.Second)
			e.DueInSeconds = &secs
			e.DueState = DueScheduled
			if secs <= 0 {
				e.DueState = DueNow
				rep.DueNow++
			}
		}
		rep.Automations = append(rep.Automations, e)
	}
	rep.EnabledAutomations = len(rep.Automations)
	return rep
}
