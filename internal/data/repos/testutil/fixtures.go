package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
)

// SeedAutomation inserts an enabled daily automation; mutate tweaks the row
// before insert.
func SeedAutomation(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, mutate func(a *types.Automation)) *types.Automation {
	tb.Helper()
	a := &types.Automation{
		ID:                   uuid.New(),
		Name:                 name,
		Enabled:              true,
		ScheduleType:         automation.ScheduleDaily,
		ScheduleHour:         9,
		ScheduleEveryMinutes: 10,
		ScheduleWeekday:      1,
		VideoSource:          automation.SourceManual,
		VideoDaysFilter:      30,
		VideosPerRun:         5,
		ShortDuration:        60,
		ShortAspectRatio:     "9:16",
		WhisperLanguage:      "en",
		PublishScheduleMode:  automation.PublishImmediate,
		RotationCycle:        1,
		Status:               automation.StatusInactive,
	}
	if mutate != nil {
		mutate(a)
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed automation: %v", err)
	}
	return a
}

func SeedProcessed(tb testing.TB, ctx context.Context, tx *gorm.DB, automationID uuid.UUID, cycle int, identifier string, size int64, hash string) *types.ProcessedVideo {
	tb.Helper()
	p := &types.ProcessedVideo{
		AutomationID:    automationID,
		CycleNumber:     cycle,
		VideoIdentifier: identifier,
		VideoFilename:   identifier,
		FileSize:        size,
		ContentHash:     hash,
		ProcessedAt:     time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed processed video: %v", err)
	}
	return p
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }
func PtrTime(v time.Time) *time.Time { return &v }
