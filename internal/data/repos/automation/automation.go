package automation

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// Condition narrows a conditional update. Zero fields are not applied.
type Condition struct {
	NotInStatus    []automation.Status
	InStatus       []automation.Status
	RequireEnabled bool
	// DueAt requires next_run_at to be unset or not after DueAt.
	DueAt *time.Time
	RunID *uuid.UUID
	// QueueEmpty requires that no automation is waiting in the queue.
	QueueEmpty bool
}

func (c Condition) apply(q *gorm.DB) *gorm.DB {
	if len(c.NotInStatus) > 0 {
		q = q.Where("status NOT IN ?", statusStrings(c.NotInStatus))
	}
	if len(c.InStatus) > 0 {
		q = q.Where("status IN ?", statusStrings(c.InStatus))
	}
	if c.RequireEnabled {
		q = q.Where("enabled = ?", true)
	}
	if c.DueAt != nil {
		q = q.Where("(next_run_at IS NULL OR next_run_at <= ?)", c.DueAt.UTC())
	}
	if c.RunID != nil {
		q = q.Where("run_id = ?", *c.RunID)
	}
	if c.QueueEmpty {
		q = q.Where("NOT EXISTS (SELECT 1 FROM automation AS waiting WHERE waiting.status = ?)", string(automation.StatusQueued))
	}
	return q
}

type AutomationRepo interface {
	Create(dbc dbctx.Context, a *types.Automation) (*types.Automation, error)
	SaveByName(dbc dbctx.Context, a *types.Automation) (*types.Automation, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Automation, error)
	GetByName(dbc dbctx.Context, name string) (*types.Automation, error)
	List(dbc dbctx.Context) ([]*types.Automation, error)
	ListDue(dbc dbctx.Context, now time.Time, limit int) ([]*types.Automation, error)
	ListByStatus(dbc dbctx.Context, statuses []automation.Status) ([]*types.Automation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	TryTransition(dbc dbctx.Context, id uuid.UUID, cond Condition, updates map[string]interface{}) (bool, error)
	UpdateForRun(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, updates map[string]interface{}) (bool, error)
	OldestQueued(dbc dbctx.Context) (*types.Automation, error)
	CountQueuedAhead(dbc dbctx.Context, a *types.Automation) (int64, error)
	ListStale(dbc dbctx.Context, cutoff time.Time) ([]*types.Automation, error)
	AdvanceCycle(dbc dbctx.Context, id uuid.UUID, from int) (bool, error)
}

type automationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAutomationRepo(db *gorm.DB, baseLog *logger.Logger) AutomationRepo {
	return &automationRepo{
		db:  db,
		log: baseLog.With("repo", "AutomationRepo"),
	}
}

// configColumns are the operator-owned columns; SaveByName never touches run state.
var configColumns = []string{
	"enabled",
	"schedule_type", "schedule_hour", "schedule_every_minutes", "schedule_weekday",
	"video_source", "source_prefix", "manual_video_urls", "video_days_filter",
	"video_start_date", "video_end_date", "videos_per_run",
	"short_duration", "short_aspect_ratio",
	"ai_taglines_enabled", "ai_tagline_prompt", "branding_text_top", "branding_text_bottom", "random_words",
	"whisper_enabled", "whisper_language",
	"publish_enabled", "publish_account_ids", "publish_schedule_mode", "publish_schedule_at",
	"publish_schedule_timezone", "publish_offset_minutes", "publish_spread_minutes",
	"rotation_enabled", "rotation_auto_reset", "rotation_shuffle",
	"next_run_at", "updated_at",
}

func (r *automationRepo) Create(dbc dbctx.Context, a *types.Automation) (*types.Automation, error) {
	if a == nil {
		return nil, errors.New("automation is nil")
	}
	if strings.TrimSpace(a.Name) == "" {
		return nil, errors.New("automation name is required")
	}
	a.ApplyDefaults()
	if err := dbc.Conn(r.db).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// SaveByName inserts a new automation or overwrites the configuration of the
// existing one with the same name. The bool reports whether a row was created.
func (r *automationRepo) SaveByName(dbc dbctx.Context, a *types.Automation) (*types.Automation, bool, error) {
	if a == nil {
		return nil, false, errors.New("automation is nil")
	}
	existing, err := r.GetByName(dbc, a.Name)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		created, err := r.Create(dbc, a)
		return created, err == nil, err
	}
	a.ApplyDefaults()
	a.ID = existing.ID
	a.UpdatedAt = time.Now().UTC()
	if err := dbc.Conn(r.db).
		Model(&types.Automation{}).
		Where("id = ?", existing.ID).
		Select(configColumns).
		Updates(a).Error; err != nil {
		return nil, false, err
	}
	out, err := r.GetByID(dbc, existing.ID)
	return out, false, err
}

func (r *automationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Automation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var a types.Automation
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&a).Error; err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, nil
	}
	return &a, nil
}

func (r *automationRepo) GetByName(dbc dbctx.Context, name string) (*types.Automation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var a types.Automation
	if err := dbc.Conn(r.db).Where("name = ?", name).Limit(1).Find(&a).Error; err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, nil
	}
	return &a, nil
}

func (r *automationRepo) List(dbc dbctx.Context) ([]*types.Automation, error) {
	var out []*types.Automation
	if err := dbc.Conn(r.db).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListDue returns enabled automations that are not busy and whose next run is
// unset or not after now.
func (r *automationRepo) ListDue(dbc dbctx.Context, now time.Time, limit int) ([]*types.Automation, error) {
	var out []*types.Automation
	q := dbc.Conn(r.db).
		Where("enabled = ?", true).
		Where("status NOT IN ?", statusStrings([]automation.Status{automation.StatusProcessing, automation.StatusQueued})).
		Where("(next_run_at IS NULL OR next_run_at <= ?)", now.UTC()).
		Order("next_run_at ASC").
		Order("name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *automationRepo) ListByStatus(dbc dbctx.Context, statuses []automation.Status) ([]*types.Automation, error) {
	var out []*types.Automation
	if len(statuses) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("status IN ?", statusStrings(statuses)).
		Order("queue_seq ASC").
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *automationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if len(updates) == 0 {
		return nil
	}
	updates = withUpdatedAt(updates)
	return dbc.Conn(r.db).
		Model(&types.Automation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TryTransition applies updates only when the row still satisfies cond and
// reports whether it did.
func (r *automationRepo) TryTransition(dbc dbctx.Context, id uuid.UUID, cond Condition, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	updates = withUpdatedAt(updates)
	q := dbc.Conn(r.db).Model(&types.Automation{}).Where("id = ?", id)
	res := cond.apply(q).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateForRun writes only while the run token still owns the processing slot.
func (r *automationRepo) UpdateForRun(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if runID == uuid.Nil {
		return false, nil
	}
	return r.TryTransition(dbc, id, Condition{
		InStatus: []automation.Status{automation.StatusProcessing},
		RunID:    &runID,
	}, updates)
}

func (r *automationRepo) OldestQueued(dbc dbctx.Context) (*types.Automation, error) {
	var a types.Automation
	if err := dbc.Conn(r.db).
		Where("status = ?", string(automation.StatusQueued)).
		Order("queue_seq ASC").
		Order("queued_at ASC").
		Order("id ASC").
		Limit(1).
		Find(&a).Error; err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, nil
	}
	return &a, nil
}

// CountQueuedAhead counts queued automations that precede a in FIFO order.
func (r *automationRepo) CountQueuedAhead(dbc dbctx.Context, a *types.Automation) (int64, error) {
	if a == nil {
		return 0, nil
	}
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.Automation{}).
		Where("status = ?", string(automation.StatusQueued)).
		Where("id <> ?", a.ID).
		Where("(queue_seq < ? OR (queue_seq = ? AND (queued_at < ? OR (queued_at = ? AND id < ?))))",
			a.QueueSeq, a.QueueSeq, a.QueuedAt, a.QueuedAt, a.ID).
		Count(&n).Error
	return n, err
}

// ListStale returns processing automations whose last sign of life is older
// than cutoff.
func (r *automationRepo) ListStale(dbc dbctx.Context, cutoff time.Time) ([]*types.Automation, error) {
	var out []*types.Automation
	if err := dbc.Conn(r.db).
		Where("status = ?", string(automation.StatusProcessing)).
		Where("COALESCE(last_progress_at, last_run_at, updated_at) < ?", cutoff.UTC()).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceCycle bumps rotation_cycle from `from` to from+1 unless another
// writer already moved it.
func (r *automationRepo) AdvanceCycle(dbc dbctx.Context, id uuid.UUID, from int) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&types.Automation{}).
		Where("id = ? AND rotation_cycle = ?", id, from).
		Updates(map[string]interface{}{
			"rotation_cycle": from + 1,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func withUpdatedAt(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return updates
}

func statusStrings(in []automation.Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
