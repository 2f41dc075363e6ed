package domain

import "github.com/yungbote/reelforge-backend/internal/domain/automation"

type (
	Automation      = automation.Automation
	AutomationLog   = automation.AutomationLog
	ProcessedVideo  = automation.ProcessedVideo
	OutboundPost    = automation.OutboundPost
	VideoJob        = automation.VideoJob
	ProgressPayload = automation.ProgressPayload
	RunStats        = automation.RunStats
	Status          = automation.Status
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&automation.Automation{},
		&automation.ProcessedVideo{},
		&automation.AutomationLog{},
		&automation.OutboundPost{},
		&automation.VideoJob{},
	}
}
