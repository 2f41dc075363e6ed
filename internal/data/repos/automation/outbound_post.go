package automation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type OutboundPostRepo interface {
	Create(dbc dbctx.Context, post *types.OutboundPost) (*types.OutboundPost, error)
	ListForSync(dbc dbctx.Context, limit int) ([]*types.OutboundPost, error)
	ListByAutomation(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]*types.OutboundPost, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status automation.PostStatus, results datatypes.JSON, syncedAt time.Time) error
}

type outboundPostRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutboundPostRepo(db *gorm.DB, baseLog *logger.Logger) OutboundPostRepo {
	return &outboundPostRepo{
		db:  db,
		log: baseLog.With("repo", "OutboundPostRepo"),
	}
}

func (r *outboundPostRepo) Create(dbc dbctx.Context, post *types.OutboundPost) (*types.OutboundPost, error) {
	if post == nil {
		return nil, nil
	}
	if post.Status == "" {
		post.Status = automation.PostPending
	}
	if err := dbc.Conn(r.db).Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// ListForSync returns posts whose remote outcome is not yet known, oldest first.
func (r *outboundPostRepo) ListForSync(dbc dbctx.Context, limit int) ([]*types.OutboundPost, error) {
	var out []*types.OutboundPost
	if limit <= 0 {
		limit = 20
	}
	if err := dbc.Conn(r.db).
		Where("status IN ?", []string{
			string(automation.PostPending),
			string(automation.PostScheduled),
			string(automation.PostPartial),
		}).
		Where("external_post_id <> ''").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *outboundPostRepo) ListByAutomation(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]*types.OutboundPost, error) {
	var out []*types.OutboundPost
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

func (r *outboundPostRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status automation.PostStatus, results datatypes.JSON, syncedAt time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	updates := map[string]interface{}{
		"status":     string(status),
		"synced_at":  syncedAt.UTC(),
		"updated_at": time.Now().UTC(),
	}
	if len(results) > 0 {
		updates["results"] = results
	}
	return dbc.Conn(r.db).
		Model(&types.OutboundPost{}).
		Where("id = ?", id).
		Updates(updates).Error
}
