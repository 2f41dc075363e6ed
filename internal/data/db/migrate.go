package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
)

// singleSlotIndex keeps at most one automation in the processing state. Postgres
// and SQLite both support partial unique indexes with this syntax.
const singleSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_automation_single_processing ON automation (status) WHERE status = 'processing'`

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Exec(singleSlotIndex).Error; err != nil {
		return fmt.Errorf("create single slot index: %w", err)
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Running auto migrations", "driver", s.driver)
	return AutoMigrateAll(s.db)
}
