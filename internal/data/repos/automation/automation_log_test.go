package automation

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

func TestAutomationLogRepoRecentTaglines(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewAutomationLogRepo(db, testutil.Logger(t))

	a := testutil.SeedAutomation(t, ctx, db, "logs", nil)
	base := time.Now().UTC().Add(-time.Hour)

	entries := []*types.AutomationLog{
		{AutomationID: a.ID, Action: automation.ActionAITagline, Status: automation.LogSuccess, Message: "Top: one | Bottom: a", CreatedAt: base},
		{AutomationID: a.ID, Action: automation.ActionAITagline, Status: automation.LogError, Message: "quota", CreatedAt: base.Add(time.Minute)},
		{AutomationID: a.ID, Action: automation.ActionLocalTagline, Status: automation.LogSuccess, Message: "Top: two | Bottom: b", CreatedAt: base.Add(2 * time.Minute)},
		{AutomationID: a.ID, Action: "run_started", Status: automation.LogInfo, Message: "go", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Append(dbc, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := repo.RecentTaglineMessages(dbc, a.ID, 20)
	if err != nil {
		t.Fatalf("RecentTaglineMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0] != "Top: two | Bottom: b" || msgs[1] != "Top: one | Bottom: a" {
		t.Fatalf("RecentTaglineMessages: got %v", msgs)
	}

	recent, err := repo.ListRecent(dbc, a.ID, 2)
	if err != nil || len(recent) != 2 || recent[0].Action != "run_started" {
		t.Fatalf("ListRecent: err=%v rows=%d", err, len(recent))
	}
}
