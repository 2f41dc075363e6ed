package automation

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

func TestOutboundPostRepoSync(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewOutboundPostRepo(db, testutil.Logger(t))

	a := testutil.SeedAutomation(t, ctx, db, "posts", nil)
	for i, st := range []automation.PostStatus{automation.PostPending, automation.PostScheduled, automation.PostPosted, automation.PostPartial} {
		if _, err := repo.Create(dbc, &types.OutboundPost{
			ExternalPostID: "sp_" + string(st),
			AutomationID:   a.ID,
			VideoID:        "v",
			Status:         st,
			CreatedAt:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	pending, err := repo.ListForSync(dbc, 20)
	if err != nil {
		t.Fatalf("ListForSync: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("ListForSync: expected 3, got %d", len(pending))
	}

	if err := repo.UpdateStatus(dbc, pending[0].ID, automation.PostPosted, datatypes.JSON(`{"status":"published"}`), time.Now()); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	pending, err = repo.ListForSync(dbc, 20)
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListForSync(after update): err=%v len=%d", err, len(pending))
	}

	all, err := repo.ListByAutomation(dbc, a.ID, 10)
	if err != nil || len(all) != 4 {
		t.Fatalf("ListByAutomation: err=%v len=%d", err, len(all))
	}
}
