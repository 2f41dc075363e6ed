package journal

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (s *captureSink) Publish(_ context.Context, m realtime.SSEMessage) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return nil
}

func TestJournalRecordPersistsAndPublishes(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	a := testutil.SeedAutomation(t, ctx, db, "journal", nil)

	repo := repoauto.NewAutomationLogRepo(db, log)
	sink := &captureSink{}
	j := New(repo, sink, log)

	j.Record(ctx, a.ID, Entry{Action: "posting", Status: automation.LogSuccess, Message: "POSTED", VideoID: "v1", Platform: "postforme"})
	j.Info(ctx, a.ID, "fetch", "Fetching")

	rows, err := repo.ListRecent(dbctx.New(ctx), a.ID, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	var posting bool
	for _, r := range rows {
		if r.Action == "posting" {
			posting = r.Platform == "postforme" && r.VideoID == "v1" && r.Status == automation.LogSuccess
		}
	}
	if !posting {
		t.Fatalf("posting entry not stored as written: %+v", rows)
	}
	if len(sink.msgs) != 2 || sink.msgs[0].Channel != realtime.AutomationChannel(a.ID) || sink.msgs[0].Event != realtime.SSEEventAutomationLog {
		t.Fatalf("unexpected published messages: %+v", sink.msgs)
	}
}

func TestJournalToleratesMissingRepo(t *testing.T) {
	j := New(nil, nil, testutil.Logger(t))
	j.Error(context.Background(), uuid.New(), "run_error", "boom")
}
