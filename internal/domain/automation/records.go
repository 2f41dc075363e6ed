package automation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessedVideo is one identifier alias of a video consumed in a rotation cycle.
type ProcessedVideo struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_processed_video_alias,priority:1" json:"automation_id"`
	VideoIdentifier string    `gorm:"column:video_identifier;not null;uniqueIndex:idx_processed_video_alias,priority:2" json:"video_identifier"`
	CycleNumber     int       `gorm:"column:cycle_number;not null;uniqueIndex:idx_processed_video_alias,priority:3;index" json:"cycle_number"`
	VideoFilename   string    `gorm:"column:video_filename" json:"video_filename,omitempty"`
	FileSize        int64     `gorm:"column:file_size;not null;default:0;index" json:"file_size"`
	ContentHash     string    `gorm:"column:content_hash;index" json:"content_hash,omitempty"`
	ProcessedAt     time.Time `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (ProcessedVideo) TableName() string { return "processed_video" }

func (p *ProcessedVideo) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Log actions with meaning beyond the audit trail.
const (
	ActionAITagline    = "ai_tagline"
	ActionLocalTagline = "local_tagline"
)

const (
	LogInfo    = "info"
	LogSuccess = "success"
	LogWarning = "warning"
	LogError   = "error"
)

type AutomationLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID uuid.UUID `gorm:"type:uuid;not null;index:idx_automation_log_lookup,priority:1" json:"automation_id"`
	Action       string    `gorm:"column:action;not null;index:idx_automation_log_lookup,priority:2" json:"action"`
	Status       string    `gorm:"column:status;not null" json:"status"`
	Message      string    `gorm:"column:message;type:text" json:"message"`
	VideoID      string    `gorm:"column:video_id" json:"video_id,omitempty"`
	Platform     string    `gorm:"column:platform" json:"platform,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

func (AutomationLog) TableName() string { return "automation_log" }

func (l *AutomationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type PostStatus string

const (
	PostPending   PostStatus = "pending"
	PostScheduled PostStatus = "scheduled"
	PostPartial   PostStatus = "partial"
	PostPosted    PostStatus = "posted"
	PostFailed    PostStatus = "failed"
)

// OutboundPost tracks a submission to the publishing provider for later reconciliation.
type OutboundPost struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalPostID string         `gorm:"column:external_post_id;not null;index" json:"external_post_id"`
	AutomationID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"automation_id"`
	VideoID        string         `gorm:"column:video_id" json:"video_id"`
	Caption        string         `gorm:"column:caption;type:text" json:"caption"`
	AccountIDs     datatypes.JSON `gorm:"column:account_ids;type:jsonb" json:"account_ids"`
	Status         PostStatus     `gorm:"column:status;not null;index" json:"status"`
	ScheduledAt    *time.Time     `gorm:"column:scheduled_at" json:"scheduled_at,omitempty"`
	Results        datatypes.JSON `gorm:"column:results;type:jsonb" json:"results,omitempty"`
	SyncedAt       *time.Time     `gorm:"column:synced_at" json:"synced_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (OutboundPost) TableName() string { return "outbound_post" }

func (p *OutboundPost) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// VideoJob is the completed-job record written for every finished item.
type VideoJob struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"automation_id"`
	RunID        *uuid.UUID `gorm:"type:uuid;column:run_id;index" json:"run_id,omitempty"`
	VideoID      string     `gorm:"column:video_id;not null" json:"video_id"`
	Name         string     `gorm:"column:name;not null" json:"name"`
	OutputPath   string     `gorm:"column:output_path" json:"output_path"`
	Status       string     `gorm:"column:status;not null" json:"status"`
	Progress     int        `gorm:"column:progress;not null;default:0" json:"progress"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
}

func (VideoJob) TableName() string { return "video_job" }

func (j *VideoJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
