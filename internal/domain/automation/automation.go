package automation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the single mutable lifecycle state of an automation.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	// StatusRunning means idle and enabled, waiting for the next scheduled run.
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

var allStatuses = []Status{
	StatusInactive, StatusQueued, StatusProcessing, StatusRunning,
	StatusCompleted, StatusError, StatusStopped,
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Busy reports whether the status blocks a new claim.
func (s Status) Busy() bool { return s == StatusProcessing || s == StatusQueued }

type ScheduleType string

const (
	ScheduleMinutes ScheduleType = "minutes"
	ScheduleHourly  ScheduleType = "hourly"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
)

type VideoSource string

const (
	SourceBunny  VideoSource = "bunny"
	SourceGCS    VideoSource = "gcs"
	SourceManual VideoSource = "manual"
)

type PublishMode string

const (
	PublishImmediate PublishMode = "immediate"
	PublishScheduled PublishMode = "scheduled"
	PublishOffset    PublishMode = "offset"
)

const (
	MinVideosPerRun = 1
	MaxVideosPerRun = 500
)

type Automation struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Enabled bool      `gorm:"column:enabled;not null;default:false;index" json:"enabled"`

	ScheduleType         ScheduleType `gorm:"column:schedule_type;not null;default:daily" json:"schedule_type"`
	ScheduleHour         int          `gorm:"column:schedule_hour;not null" json:"schedule_hour"`
	ScheduleEveryMinutes int          `gorm:"column:schedule_every_minutes;not null;default:10" json:"schedule_every_minutes"`
	ScheduleWeekday      int          `gorm:"column:schedule_weekday;not null" json:"schedule_weekday"`

	VideoSource     VideoSource `gorm:"column:video_source;not null;default:manual" json:"video_source"`
	SourcePrefix    string      `gorm:"column:source_prefix" json:"source_prefix,omitempty"`
	ManualVideoURLs string      `gorm:"column:manual_video_urls;type:text" json:"manual_video_urls,omitempty"`
	VideoDaysFilter int         `gorm:"column:video_days_filter;not null;default:30" json:"video_days_filter"`
	VideoStartDate  string      `gorm:"column:video_start_date" json:"video_start_date,omitempty"`
	VideoEndDate    string      `gorm:"column:video_end_date" json:"video_end_date,omitempty"`
	VideosPerRun    int         `gorm:"column:videos_per_run;not null;default:5" json:"videos_per_run"`

	ShortDuration    int    `gorm:"column:short_duration;not null;default:60" json:"short_duration"`
	ShortAspectRatio string `gorm:"column:short_aspect_ratio;not null;default:9:16" json:"short_aspect_ratio"`

	AITaglinesEnabled  bool           `gorm:"column:ai_taglines_enabled;not null;default:false" json:"ai_taglines_enabled"`
	AITaglinePrompt    string         `gorm:"column:ai_tagline_prompt;type:text" json:"ai_tagline_prompt,omitempty"`
	BrandingTextTop    string         `gorm:"column:branding_text_top" json:"branding_text_top,omitempty"`
	BrandingTextBottom string         `gorm:"column:branding_text_bottom" json:"branding_text_bottom,omitempty"`
	RandomWords        datatypes.JSON `gorm:"column:random_words;type:jsonb" json:"random_words,omitempty"`

	WhisperEnabled  bool   `gorm:"column:whisper_enabled;not null;default:false" json:"whisper_enabled"`
	WhisperLanguage string `gorm:"column:whisper_language;not null;default:en" json:"whisper_language"`

	PublishEnabled          bool           `gorm:"column:publish_enabled;not null;default:false" json:"publish_enabled"`
	PublishAccountIDs       datatypes.JSON `gorm:"column:publish_account_ids;type:jsonb" json:"publish_account_ids,omitempty"`
	PublishScheduleMode     PublishMode    `gorm:"column:publish_schedule_mode;not null;default:immediate" json:"publish_schedule_mode"`
	PublishScheduleAt       string         `gorm:"column:publish_schedule_at" json:"publish_schedule_at,omitempty"`
	PublishScheduleTimezone string         `gorm:"column:publish_schedule_timezone" json:"publish_schedule_timezone,omitempty"`
	PublishOffsetMinutes    int            `gorm:"column:publish_offset_minutes;not null;default:0" json:"publish_offset_minutes"`
	PublishSpreadMinutes    int            `gorm:"column:publish_spread_minutes;not null;default:0" json:"publish_spread_minutes"`

	RotationEnabled   bool `gorm:"column:rotation_enabled;not null;default:false" json:"rotation_enabled"`
	RotationCycle     int  `gorm:"column:rotation_cycle;not null;default:1" json:"rotation_cycle"`
	RotationAutoReset bool `gorm:"column:rotation_auto_reset;not null;default:false" json:"rotation_auto_reset"`
	RotationShuffle   bool `gorm:"column:rotation_shuffle;not null;default:false" json:"rotation_shuffle"`

	Status          Status         `gorm:"column:status;not null;default:inactive;index" json:"status"`
	RunID           *uuid.UUID     `gorm:"type:uuid;column:run_id" json:"run_id,omitempty"`
	ProgressPercent int            `gorm:"column:progress_percent;not null;default:0" json:"progress_percent"`
	Progress        datatypes.JSON `gorm:"column:progress;type:jsonb" json:"progress,omitempty"`
	LastProgressAt  *time.Time     `gorm:"column:last_progress_at;index" json:"last_progress_at,omitempty"`
	QueuedAt        *time.Time     `gorm:"column:queued_at;index" json:"queued_at,omitempty"`
	QueueSeq        int64          `gorm:"column:queue_seq;not null;default:0;index" json:"queue_seq,omitempty"`
	LastRunAt       *time.Time     `gorm:"column:last_run_at" json:"last_run_at,omitempty"`
	NextRunAt       *time.Time     `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`
	LastError       string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Automation) TableName() string { return "automation" }

func (a *Automation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusInactive
	}
	if a.RotationCycle < 1 {
		a.RotationCycle = 1
	}
	return nil
}

// ApplyDefaults fills configuration fields whose zero value is not meaningful.
// ScheduleHour and ScheduleWeekday are left alone since 0 is a valid value.
func (a *Automation) ApplyDefaults() {
	if a.ScheduleType == "" {
		a.ScheduleType = ScheduleDaily
	}
	if a.ScheduleEveryMinutes < 1 {
		a.ScheduleEveryMinutes = 10
	}
	if a.VideoSource == "" {
		a.VideoSource = SourceManual
	}
	if a.VideoDaysFilter <= 0 {
		a.VideoDaysFilter = 30
	}
	if a.VideosPerRun <= 0 {
		a.VideosPerRun = 5
	}
	if a.ShortDuration <= 0 {
		a.ShortDuration = 60
	}
	if strings.TrimSpace(a.ShortAspectRatio) == "" {
		a.ShortAspectRatio = "9:16"
	}
	if strings.TrimSpace(a.WhisperLanguage) == "" {
		a.WhisperLanguage = "en"
	}
	if a.PublishScheduleMode == "" {
		a.PublishScheduleMode = PublishImmediate
	}
	if a.RotationCycle < 1 {
		a.RotationCycle = 1
	}
}

// BatchSize is VideosPerRun clamped to the supported range.
func (a *Automation) BatchSize() int {
	n := a.VideosPerRun
	if n < MinVideosPerRun {
		return MinVideosPerRun
	}
	if n > MaxVideosPerRun {
		return MaxVideosPerRun
	}
	return n
}

func (a *Automation) Cycle() int {
	if a.RotationCycle < 1 {
		return 1
	}
	return a.RotationCycle
}

func (a *Automation) Words() []string { return decodeStrings(a.RandomWords) }

func (a *Automation) AccountIDs() []string { return decodeStrings(a.PublishAccountIDs) }

// ProgressPayload decodes the persisted progress snapshot; malformed or empty
// payloads decode to the zero value.
func (a *Automation) ProgressPayload() ProgressPayload {
	var p ProgressPayload
	if len(a.Progress) == 0 {
		return p
	}
	_ = json.Unmarshal(a.Progress, &p)
	return p
}

// EncodeStrings serializes a string list for the JSON list columns.
func EncodeStrings(values []string) datatypes.JSON {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	raw, _ := json.Marshal(out)
	return datatypes.JSON(raw)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compact(list)
	}
	// legacy rows may hold a comma separated string
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return compact(strings.Split(s, ","))
	}
	return nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
