package automation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type ProcessedVideoRepo interface {
	ListForCycle(dbc dbctx.Context, automationID uuid.UUID, cycle int) ([]*types.ProcessedVideo, error)
	UpsertAliases(dbc dbctx.Context, rows []*types.ProcessedVideo) error
	SetContentHash(dbc dbctx.Context, automationID uuid.UUID, cycle int, identifiers []string, hash string) error
	CountForCycle(dbc dbctx.Context, automationID uuid.UUID, cycle int) (int64, error)
	DeleteCycle(dbc dbctx.Context, automationID uuid.UUID, cycle int) (int64, error)
}

type processedVideoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessedVideoRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedVideoRepo {
	return &processedVideoRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessedVideoRepo"),
	}
}

func (r *processedVideoRepo) ListForCycle(dbc dbctx.Context, automationID uuid.UUID, cycle int) ([]*types.ProcessedVideo, error) {
	var out []*types.ProcessedVideo
	if automationID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("automation_id = ? AND cycle_number = ?", automationID, cycle).
		Order("processed_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertAliases inserts one row per alias; an existing alias only gets its
// processed_at refreshed.
func (r *processedVideoRepo) UpsertAliases(dbc dbctx.Context, rows []*types.ProcessedVideo) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ProcessedAt.IsZero() {
			row.ProcessedAt = now
		}
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "automation_id"}, {Name: "video_identifier"}, {Name: "cycle_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"processed_at"}),
		}).
		Create(&rows).Error
}

// SetContentHash backfills the fingerprint on the given alias rows.
func (r *processedVideoRepo) SetContentHash(dbc dbctx.Context, automationID uuid.UUID, cycle int, identifiers []string, hash string) error {
	if hash == "" || len(identifiers) == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.ProcessedVideo{}).
		Where("automation_id = ? AND cycle_number = ? AND video_identifier IN ?", automationID, cycle, identifiers).
		Update("content_hash", hash).Error
}

// CountForCycle counts distinct videos rather than alias rows. Rows without a
// content hash count individually.
func (r *processedVideoRepo) CountForCycle(dbc dbctx.Context, automationID uuid.UUID, cycle int) (int64, error) {
	var hashed int64
	if err := dbc.Conn(r.db).
		Model(&types.ProcessedVideo{}).
		Where("automation_id = ? AND cycle_number = ? AND content_hash <> ''", automationID, cycle).
		Distinct("content_hash").
		Count(&hashed).Error; err != nil {
		return 0, err
	}
	var bare int64
	if err := dbc.Conn(r.db).
		Model(&types.ProcessedVideo{}).
		Where("automation_id = ? AND cycle_number = ? AND (content_hash IS NULL OR content_hash = '')", automationID, cycle).
		Count(&bare).Error; err != nil {
		return 0, err
	}
	return hashed + bare, nil
}

func (r *processedVideoRepo) DeleteCycle(dbc dbctx.Context, automationID uuid.UUID, cycle int) (int64, error) {
	res := dbc.Conn(r.db).
		Where("automation_id = ? AND cycle_number = ?", automationID, cycle).
		Delete(&types.ProcessedVideo{})
	return res.RowsAffected, res.Error
}
