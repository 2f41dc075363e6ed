package automation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

func TestAutomationRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewAutomationRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	a := testutil.SeedAutomation(t, ctx, db, "alpha", nil)
	b := testutil.SeedAutomation(t, ctx, db, "beta", func(x *types.Automation) {
		x.NextRunAt = testutil.PtrTime(now.Add(time.Hour))
	})
	testutil.SeedAutomation(t, ctx, db, "gamma", func(x *types.Automation) {
		x.Enabled = false
	})

	got, err := repo.GetByName(dbc, "alpha")
	if err != nil || got == nil || got.ID != a.ID {
		t.Fatalf("GetByName: err=%v got=%v", err, got)
	}
	if got.ScheduleHour != 9 || got.ScheduleWeekday != 1 {
		t.Fatalf("GetByName: schedule defaults lost: hour=%d weekday=%d", got.ScheduleHour, got.ScheduleWeekday)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID(missing): err=%v got=%v", err, missing)
	}

	due, err := repo.ListDue(dbc, now, 0)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].ID != a.ID {
		t.Fatalf("ListDue: expected only alpha, got %d rows", len(due))
	}

	runID := uuid.New()
	ok, err := repo.TryTransition(dbc, a.ID, Condition{
		NotInStatus: []automation.Status{automation.StatusProcessing, automation.StatusQueued},
	}, map[string]interface{}{
		"status": string(automation.StatusProcessing),
		"run_id": runID,
	})
	if err != nil || !ok {
		t.Fatalf("TryTransition(claim): ok=%v err=%v", ok, err)
	}
	ok, err = repo.TryTransition(dbc, a.ID, Condition{
		NotInStatus: []automation.Status{automation.StatusProcessing, automation.StatusQueued},
	}, map[string]interface{}{"status": string(automation.StatusProcessing)})
	if err != nil || ok {
		t.Fatalf("TryTransition(second claim): expected no-op, ok=%v err=%v", ok, err)
	}

	if ok, err := repo.UpdateForRun(dbc, a.ID, uuid.New(), map[string]interface{}{"progress_percent": 50}); err != nil || ok {
		t.Fatalf("UpdateForRun(foreign token): ok=%v err=%v", ok, err)
	}
	if ok, err := repo.UpdateForRun(dbc, a.ID, runID, map[string]interface{}{"progress_percent": 50}); err != nil || !ok {
		t.Fatalf("UpdateForRun(owner): ok=%v err=%v", ok, err)
	}

	stale, err := repo.ListStale(dbc, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != a.ID {
		t.Fatalf("ListStale: expected alpha, got %d rows", len(stale))
	}
	if stale, err := repo.ListStale(dbc, now.Add(-time.Hour)); err != nil || len(stale) != 0 {
		t.Fatalf("ListStale(past cutoff): err=%v len=%d", err, len(stale))
	}

	if ok, err := repo.AdvanceCycle(dbc, b.ID, 1); err != nil || !ok {
		t.Fatalf("AdvanceCycle: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.AdvanceCycle(dbc, b.ID, 1); err != nil || ok {
		t.Fatalf("AdvanceCycle(stale from): ok=%v err=%v", ok, err)
	}
	if row, _ := repo.GetByID(dbc, b.ID); row == nil || row.RotationCycle != 2 {
		t.Fatalf("AdvanceCycle: expected cycle 2, got %+v", row)
	}
}

func TestAutomationRepoSaveByName(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewAutomationRepo(db, testutil.Logger(t))

	a := testutil.SeedAutomation(t, ctx, db, "daily-clips", func(x *types.Automation) {
		x.Status = automation.StatusError
		x.LastError = "boom"
	})

	updated, created, err := repo.SaveByName(dbc, &types.Automation{
		Name:             "daily-clips",
		Enabled:          false,
		ScheduleType:     automation.ScheduleWeekly,
		ScheduleHour:     0,
		ScheduleWeekday:  0,
		VideoSource:      automation.SourceBunny,
		VideosPerRun:     12,
		ShortAspectRatio: "1:1",
		RandomWords:      automation.EncodeStrings([]string{"wow", "epic"}),
	})
	if err != nil {
		t.Fatalf("SaveByName: %v", err)
	}
	if created {
		t.Fatalf("SaveByName: expected update of existing row")
	}
	if updated.ID != a.ID {
		t.Fatalf("SaveByName: id changed")
	}
	if updated.Enabled || updated.ScheduleType != automation.ScheduleWeekly || updated.ScheduleHour != 0 || updated.VideosPerRun != 12 {
		t.Fatalf("SaveByName: config not applied: %+v", updated)
	}
	if updated.Status != automation.StatusError || updated.LastError != "boom" {
		t.Fatalf("SaveByName: run state must survive, got status=%s last_error=%q", updated.Status, updated.LastError)
	}
	if words := updated.Words(); len(words) != 2 || words[0] != "wow" {
		t.Fatalf("SaveByName: words=%v", words)
	}

	fresh, created, err := repo.SaveByName(dbc, &types.Automation{Name: "weekly-clips"})
	if err != nil || !created || fresh.ID == uuid.Nil {
		t.Fatalf("SaveByName(new): created=%v err=%v", created, err)
	}
	if fresh.Status != automation.StatusInactive || fresh.RotationCycle != 1 {
		t.Fatalf("SaveByName(new): defaults not applied: %+v", fresh)
	}
}

func TestAutomationRepoQueueOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewAutomationRepo(db, testutil.Logger(t))

	base := time.Now().UTC().Add(-time.Hour)
	var ids []uuid.UUID
	for i, name := range []string{"q1", "q2", "q3"} {
		queuedAt := base.Add(time.Duration(i) * time.Minute)
		seq := int64(i + 1)
		a := testutil.SeedAutomation(t, ctx, db, name, func(x *types.Automation) {
			x.Status = automation.StatusQueued
			x.QueuedAt = &queuedAt
			x.QueueSeq = seq
		})
		ids = append(ids, a.ID)
	}

	oldest, err := repo.OldestQueued(dbc)
	if err != nil || oldest == nil || oldest.ID != ids[0] {
		t.Fatalf("OldestQueued: err=%v got=%v", err, oldest)
	}
	for i, id := range ids {
		row, err := repo.GetByID(dbc, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		ahead, err := repo.CountQueuedAhead(dbc, row)
		if err != nil {
			t.Fatalf("CountQueuedAhead: %v", err)
		}
		if int(ahead) != i {
			t.Fatalf("CountQueuedAhead(%d): expected %d, got %d", i, i, ahead)
		}
	}

	queued, err := repo.ListByStatus(dbc, []automation.Status{automation.StatusQueued})
	if err != nil || len(queued) != 3 || queued[2].ID != ids[2] {
		t.Fatalf("ListByStatus: err=%v len=%d", err, len(queued))
	}
}
