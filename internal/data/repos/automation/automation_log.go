package automation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type AutomationLogRepo interface {
	Append(dbc dbctx.Context, entry *types.AutomationLog) error
	ListRecent(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]*types.AutomationLog, error)
	RecentTaglineMessages(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]string, error)
}

type automationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAutomationLogRepo(db *gorm.DB, baseLog *logger.Logger) AutomationLogRepo {
	return &automationLogRepo{
		db:  db,
		log: baseLog.With("repo", "AutomationLogRepo"),
	}
}

func (r *automationLogRepo) Append(dbc dbctx.Context, entry *types.AutomationLog) error {
	if entry == nil || entry.AutomationID == uuid.Nil {
		return nil
	}
	if entry.Status == "" {
		entry.Status = automation.LogInfo
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return dbc.Conn(r.db).Create(entry).Error
}

func (r *automationLogRepo) ListRecent(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]*types.AutomationLog, error) {
	var out []*types.AutomationLog
	if automationID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := dbc.Conn(r.db).
		Where("automation_id = ?", automationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// RecentTaglineMessages returns the messages of the latest successful tagline
// entries, newest first.
func (r *automationLogRepo) RecentTaglineMessages(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]string, error) {
	var out []string
	if automationID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if err := dbc.Conn(r.db).
		Model(&types.AutomationLog{}).
		Where("automation_id = ? AND action IN ? AND status = ?",
			automationID,
			[]string{automation.ActionAITagline, automation.ActionLocalTagline},
			automation.LogSuccess).
		Order("created_at DESC").
		Limit(limit).
		Pluck("message", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
