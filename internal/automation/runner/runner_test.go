package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/automation/claim"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/progress"
	"github.com/yungbote/reelforge-backend/internal/automation/schedule"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

type execFunc func(ctx context.Context, a *types.Automation, runID uuid.UUID, rep *progress.Reporter) (automation.RunStats, error)

func (f execFunc) Run(ctx context.Context, a *types.Automation, runID uuid.UUID, rep *progress.Reporter) (automation.RunStats, error) {
	return f(ctx, a, runID, rep)
}

var fixedNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	set    repos.Set
	coord  *claim.Coordinator
	runner *Runner
	ctx    context.Context

	mu   sync.Mutex
	runs []string
}

func newFixture(t *testing.T, exec func(f *fixture) execFunc) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{set: repos.NewSet(db, log), ctx: context.Background()}
	f.coord = claim.New(f.set.Automations, log)
	sched := &schedule.Calculator{Now: func() time.Time { return fixedNow }, Location: time.UTC}
	f.runner = New(f.set.Automations, f.coord, exec(f), journal.New(f.set.Logs, nil, log), sched, nil, log).
		WithClock(func() time.Time { return fixedNow })
	testutil.SeedAutomation(t, f.ctx, db, "alpha", nil)
	testutil.SeedAutomation(t, f.ctx, db, "beta", nil)
	testutil.SeedAutomation(t, f.ctx, db, "off", func(a *types.Automation) { a.Enabled = false })
	return f
}

func (f *fixture) get(t *testing.T, name string) *types.Automation {
	t.Helper()
	row, err := f.set.Automations.GetByName(dbctx.New(f.ctx), name)
	if err != nil || row == nil {
		t.Fatalf("GetByName(%s): %v", name, err)
	}
	return row
}

func (f *fixture) hasLog(t *testing.T, id uuid.UUID, action, status string) bool {
	t.Helper()
	logs, err := f.set.Logs.ListRecent(dbctx.New(f.ctx), id, 100)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	for _, l := range logs {
		if l.Action == action && l.Status == status {
			return true
		}
	}
	return false
}

func recording(stats automation.RunStats, err error) func(f *fixture) execFunc {
	return func(f *fixture) execFunc {
		return func(_ context.Context, a *types.Automation, _ uuid.UUID, _ *progress.Reporter) (automation.RunStats, error) {
			f.mu.Lock()
			f.runs = append(f.runs, a.Name)
			f.mu.Unlock()
			return stats, err
		}
	}
}

func TestStartSuccessSchedulesNextRun(t *testing.T) {
	f := newFixture(t, recording(automation.RunStats{Fetched: 3, Processed: 3}, nil))
	alpha := f.get(t, "alpha")

	res, err := f.runner.Start(f.ctx, alpha.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Outcome.Kind != claim.Claimed || res.Err != nil || res.Stats.Processed != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	row := f.get(t, "alpha")
	if row.Status != automation.StatusRunning || row.RunID != nil || row.ProgressPercent != 100 {
		t.Fatalf("unexpected final row %+v", row)
	}
	// daily at 09:00, now is 08:00
	want := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	if row.NextRunAt == nil || !row.NextRunAt.Equal(want) {
		t.Fatalf("next_run_at: want %s got %v", want, row.NextRunAt)
	}
	p := row.ProgressPayload()
	if p.Step != automation.StepComplete || p.Stats.Processed != 3 {
		t.Fatalf("final payload %+v", p)
	}
	if !f.hasLog(t, alpha.ID, "run_completed", automation.LogSuccess) {
		t.Fatal("run_completed log missing")
	}
}

func TestStartOnDisabledAutomationEndsInactive(t *testing.T) {
	f := newFixture(t, recording(automation.RunStats{}, nil))
	off := f.get(t, "off")

	res, err := f.runner.Start(f.ctx, off.ID)
	if err != nil || res.Outcome.Kind != claim.Claimed {
		t.Fatalf("manual start ignores enabled flag: %+v %v", res, err)
	}
	if row := f.get(t, "off"); row.Status != automation.StatusInactive {
		t.Fatalf("want inactive, got %s", row.Status)
	}
}

func TestRunErrorStoresLastError(t *testing.T) {
	f := newFixture(t, recording(automation.RunStats{}, errors.New("source exploded")))
	alpha := f.get(t, "alpha")

	res, err := f.runner.Start(f.ctx, alpha.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Err == nil {
		t.Fatal("expected run error in result")
	}
	row := f.get(t, "alpha")
	if row.Status != automation.StatusError || row.LastError != "source exploded" || row.NextRunAt == nil {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.ProgressPayload().Step != automation.StepError {
		t.Fatalf("payload %+v", row.ProgressPayload())
	}
	if !f.hasLog(t, alpha.ID, "run_error", automation.LogError) {
		t.Fatal("run_error log missing")
	}
}

func TestRunPanicEndsInError(t *testing.T) {
	f := newFixture(t, func(*fixture) execFunc {
		return func(context.Context, *types.Automation, uuid.UUID, *progress.Reporter) (automation.RunStats, error) {
			panic("nil map")
		}
	})
	alpha := f.get(t, "alpha")

	res, err := f.runner.Start(f.ctx, alpha.ID)
	if err != nil || res.Err == nil {
		t.Fatalf("want recovered run error, got res=%+v err=%v", res, err)
	}
	if row := f.get(t, "alpha"); row.Status != automation.StatusError {
		t.Fatalf("want error status after panic, got %s", row.Status)
	}
}

func TestQueuedAutomationRunsAfterSlotFrees(t *testing.T) {
	f := newFixture(t, recording(automation.RunStats{Processed: 1}, nil))
	alpha, beta := f.get(t, "alpha"), f.get(t, "beta")

	held, err := f.coord.TryClaim(f.ctx, alpha.ID, claim.Options{})
	if err != nil || held.Kind != claim.Claimed {
		t.Fatalf("TryClaim(alpha): %+v %v", held, err)
	}
	res, err := f.runner.Start(f.ctx, beta.ID)
	if err != nil {
		t.Fatalf("Start(beta): %v", err)
	}
	if res.Outcome.Kind != claim.Queued || res.Outcome.QueuePosition != 1 {
		t.Fatalf("want beta queued at 1, got %+v", res.Outcome)
	}

	if _, err := f.runner.RunClaimed(f.ctx, held.Automation, held.RunID); err != nil {
		t.Fatalf("RunClaimed(alpha): %v", err)
	}
	if n := f.runner.DrainQueue(f.ctx); n != 1 {
		t.Fatalf("DrainQueue ran %d", n)
	}
	if len(f.runs) != 2 || f.runs[0] != "alpha" || f.runs[1] != "beta" {
		t.Fatalf("run order %v", f.runs)
	}
	if row := f.get(t, "beta"); row.Status != automation.StatusRunning {
		t.Fatalf("beta status %s", row.Status)
	}
}

func TestStopQueuedAutomation(t *testing.T) {
	f := newFixture(t, recording(automation.RunStats{}, nil))
	alpha, beta := f.get(t, "alpha"), f.get(t, "beta")
	if _, err := f.coord.TryClaim(f.ctx, alpha.ID, claim.Options{}); err != nil {
		t.Fatal(err)
	}
	if out, err := f.runner.Claim(f.ctx, beta.ID); err != nil || out.Kind != claim.Queued {
		t.Fatalf("Claim(beta): %+v %v", out, err)
	}

	ok, err := f.runner.Stop(f.ctx, beta.ID)
	if err != nil || !ok {
		t.Fatalf("Stop: %v %v", ok, err)
	}
	if row := f.get(t, "beta"); row.Status != automation.StatusStopped || row.QueuedAt != nil {
		t.Fatalf("beta after stop %+v", row)
	}
	if ok, _ := f.runner.Stop(f.ctx, beta.ID); ok {
		t.Fatal("stopping an idle automation should be a no-op")
	}
}

func TestFinalizeSkippedWhenTokenLost(t *testing.T) {
	f := newFixture(t, func(f *fixture) execFunc {
		return func(ctx context.Context, a *types.Automation, _ uuid.UUID, _ *progress.Reporter) (automation.RunStats, error) {
			// operator stops the run mid-flight
			if _, err := f.coord.Stop(ctx, a.ID, ""); err != nil {
				return automation.RunStats{}, err
			}
			return automation.RunStats{Processed: 1}, nil
		}
	})
	alpha := f.get(t, "alpha")
	if _, err := f.runner.Start(f.ctx, alpha.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if row := f.get(t, "alpha"); row.Status != automation.StatusStopped {
		t.Fatalf("stopped run must not be overwritten, got %s", row.Status)
	}
}
