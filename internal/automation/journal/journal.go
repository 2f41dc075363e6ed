// Package journal appends run activity to automation_log and mirrors each
// entry to live clients.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/automation/progress"
	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

type Entry struct {
	Action   string
	Status   string
	Message  string
	VideoID  string
	Platform string
}

// Journal never fails its caller; write errors are only logged.
type Journal struct {
	repo repoauto.AutomationLogRepo
	sink progress.Sink
	log  *logger.Logger
	now  func() time.Time
}

func New(repo repoauto.AutomationLogRepo, sink progress.Sink, baseLog *logger.Logger) *Journal {
	return &Journal{repo: repo, sink: sink, log: baseLog.With("component", "Journal"), now: time.Now}
}

func (j *Journal) Record(ctx context.Context, automationID uuid.UUID, e Entry) {
	if j == nil {
		return
	}
	if e.Status == "" {
		e.Status = automation.LogInfo
	}
	row := &types.AutomationLog{
		AutomationID: automationID,
		Action:       e.Action,
		Status:       e.Status,
		Message:      e.Message,
		VideoID:      e.VideoID,
		Platform:     e.Platform,
		CreatedAt:    j.now().UTC(),
	}
	if j.repo != nil {
		if err := j.repo.Append(dbctx.New(context.WithoutCancel(ctx)), row); err != nil {
			j.log.Warn("Failed to append automation log", "automation_id", automationID, "action", e.Action, "error", err)
		}
	}
	if j.sink != nil {
		msg := realtime.SSEMessage{
			Channel: realtime.AutomationChannel(automationID),
			Event:   realtime.SSEEventAutomationLog,
			Data:    row,
		}
		if err := j.sink.Publish(ctx, msg); err != nil {
			j.log.Debug("Log publish failed", "error", err)
		}
	}
}

func (j *Journal) Info(ctx context.Context, id uuid.UUID, action, msg string) {
	j.Record(ctx, id, Entry{Action: action, Status: automation.LogInfo, Message: msg})
}

func (j *Journal) Success(ctx context.Context, id uuid.UUID, action, msg string) {
	j.Record(ctx, id, Entry{Action: action, Status: automation.LogSuccess, Message: msg})
}

func (j *Journal) Warn(ctx context.Context, id uuid.UUID, action, msg string) {
	j.Record(ctx, id, Entry{Action: action, Status: automation.LogWarning, Message: msg})
}

func (j *Journal) Error(ctx context.Context, id uuid.UUID, action, msg string) {
	j.Record(ctx, id, Entry{Action: action, Status: automation.LogError, Message: msg})
}
