package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type AutomationRepo = automation.AutomationRepo
type ProcessedVideoRepo = automation.ProcessedVideoRepo
type AutomationLogRepo = automation.AutomationLogRepo
type OutboundPostRepo = automation.OutboundPostRepo
type VideoJobRepo = automation.VideoJobRepo

type Condition = automation.Condition

func NewAutomationRepo(db *gorm.DB, baseLog *logger.Logger) AutomationRepo {
	return automation.NewAutomationRepo(db, baseLog)
}
func NewProcessedVideoRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedVideoRepo {
	return automation.NewProcessedVideoRepo(db, baseLog)
}
func NewAutomationLogRepo(db *gorm.DB, baseLog *logger.Logger) AutomationLogRepo {
	return automation.NewAutomationLogRepo(db, baseLog)
}
func NewOutboundPostRepo(db *gorm.DB, baseLog *logger.Logger) OutboundPostRepo {
	return automation.NewOutboundPostRepo(db, baseLog)
}
func NewVideoJobRepo(db *gorm.DB, baseLog *logger.Logger) VideoJobRepo {
	return automation.NewVideoJobRepo(db, baseLog)
}

// Set bundles every repository the engine needs.
type Set struct {
	Automations AutomationRepo
	Processed   ProcessedVideoRepo
	Logs        AutomationLogRepo
	Posts       OutboundPostRepo
	Jobs        VideoJobRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Automations: NewAutomationRepo(db, baseLog),
		Processed:   NewProcessedVideoRepo(db, baseLog),
		Logs:        NewAutomationLogRepo(db, baseLog),
		Posts:       NewOutboundPostRepo(db, baseLog),
		Jobs:        NewVideoJobRepo(db, baseLog),
	}
}
