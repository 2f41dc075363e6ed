package automation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type VideoJobRepo interface {
	Create(dbc dbctx.Context, job *types.VideoJob) (*types.VideoJob, error)
	ListByAutomation(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]*types.VideoJob, error)
}

type videoJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoJobRepo(db *gorm.DB, baseLog *logger.Logger) VideoJobRepo {
	return &videoJobRepo{
		db:  db,
		log: baseLog.With("repo", "VideoJobRepo"),
	}
}

func (r *videoJobRepo) Create(dbc dbctx.Context, job *types.VideoJob) (*types.VideoJob, error) {
	if job == nil {
		return nil, nil
	}
	if err := dbc.Conn(r.db).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *videoJobRepo) ListByAutomation(dbc dbctx.Context, automationID uuid.UUID, limit int) ([]*types.VideoJob, error) {
	var out []*types.VideoJob
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
