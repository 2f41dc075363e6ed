package automation

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

func TestProcessedVideoRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewProcessedVideoRepo(db, testutil.Logger(t))

	a := testutil.SeedAutomation(t, ctx, db, "rot", nil)

	rows := func() []*types.ProcessedVideo {
		return []*types.ProcessedVideo{
			{AutomationID: a.ID, CycleNumber: 1, VideoIdentifier: "GUID-1", VideoFilename: "clip.mp4", FileSize: 10},
			{AutomationID: a.ID, CycleNumber: 1, VideoIdentifier: "guid-1", VideoFilename: "clip.mp4", FileSize: 10},
			{AutomationID: a.ID, CycleNumber: 1, VideoIdentifier: "clip.mp4", VideoFilename: "clip.mp4", FileSize: 10},
		}
	}
	if err := repo.UpsertAliases(dbc, rows()); err != nil {
		t.Fatalf("UpsertAliases: %v", err)
	}
	if err := repo.UpsertAliases(dbc, rows()); err != nil {
		t.Fatalf("UpsertAliases(again): %v", err)
	}
	listed, err := repo.ListForCycle(dbc, a.ID, 1)
	if err != nil {
		t.Fatalf("ListForCycle: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("ListForCycle: expected 3 alias rows, got %d", len(listed))
	}

	if err := repo.SetContentHash(dbc, a.ID, 1, []string{"GUID-1", "guid-1", "clip.mp4"}, "abc"); err != nil {
		t.Fatalf("SetContentHash: %v", err)
	}
	n, err := repo.CountForCycle(dbc, a.ID, 1)
	if err != nil {
		t.Fatalf("CountForCycle: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountForCycle: expected 1 video, got %d", n)
	}

	if other, err := repo.ListForCycle(dbc, a.ID, 2); err != nil || len(other) != 0 {
		t.Fatalf("ListForCycle(2): err=%v len=%d", err, len(other))
	}
	if none, err := repo.ListForCycle(dbc, uuid.Nil, 1); err != nil || len(none) != 0 {
		t.Fatalf("ListForCycle(nil id): err=%v len=%d", err, len(none))
	}

	deleted, err := repo.DeleteCycle(dbc, a.ID, 1)
	if err != nil || deleted != 3 {
		t.Fatalf("DeleteCycle: deleted=%d err=%v", deleted, err)
	}
}
