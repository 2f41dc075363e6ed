// Package defs loads automation definitions from YAML files and upserts them
// by name.
package defs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type File struct {
	Automations []Definition `yaml:"automations"`
}

type Schedule struct {
	Type         string `yaml:"type"`
	Hour         int    `yaml:"hour"`
	EveryMinutes int    `yaml:"every_minutes,omitempty"`
	// Weekday is 0 (Sunday) to 6; weekly schedules default to Monday.
	Weekday *int `yaml:"weekday,omitempty"`
}

type Source struct {
	Kind       string   `yaml:"kind"`
	Prefix     string   `yaml:"prefix,omitempty"`
	URLs       []string `yaml:"urls,omitempty"`
	DaysFilter int      `yaml:"days_filter,omitempty"`
	StartDate  string   `yaml:"start_date,omitempty"`
	EndDate    string   `yaml:"end_date,omitempty"`
	PerRun     int      `yaml:"per_run,omitempty"`
}

type Short struct {
	Duration    int    `yaml:"duration,omitempty"`
	AspectRatio string `yaml:"aspect_ratio,omitempty"`
}

type Branding struct {
	AITaglines bool     `yaml:"ai_taglines"`
	Prompt     string   `yaml:"prompt,omitempty"`
	Top        string   `yaml:"top,omitempty"`
	Bottom     string   `yaml:"bottom,omitempty"`
	Words      []string `yaml:"random_words,omitempty"`
}

type Subtitles struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language,omitempty"`
}

type Publish struct {
	Enabled       bool     `yaml:"enabled"`
	Accounts      []string `yaml:"accounts,omitempty"`
	Mode          string   `yaml:"mode,omitempty"`
	At            string   `yaml:"at,omitempty"`
	Timezone      string   `yaml:"timezone,omitempty"`
	OffsetMinutes int      `yaml:"offset_minutes,omitempty"`
	SpreadMinutes int      `yaml:"spread_minutes,omitempty"`
}

type Rotation struct {
	Enabled   bool `yaml:"enabled"`
	AutoReset bool `yaml:"auto_reset"`
	Shuffle   bool `yaml:"shuffle"`
}

// Definition is the user-editable configuration of one automation. Run state
// is never part of a definition.
type Definition struct {
	Name      string    `yaml:"name"`
	Enabled   bool      `yaml:"enabled"`
	Schedule  Schedule  `yaml:"schedule"`
	Source    Source    `yaml:"source"`
	Short     Short     `yaml:"short,omitempty"`
	Branding  Branding  `yaml:"branding,omitempty"`
	Subtitles Subtitles `yaml:"subtitles,omitempty"`
	Publish   Publish   `yaml:"publish,omitempty"`
	Rotation  Rotation  `yaml:"rotation,omitempty"`
}

func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &File{}, nil
		}
		return nil, fmt.Errorf("decode automation definitions: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

func (f *File) Validate() error {
	seen := map[string]bool{}
	for i, d := range f.Automations {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("automation #%d: name is required", i+1)
		}
		if seen[name] {
			return fmt.Errorf("automation %q defined twice", name)
		}
		seen[name] = true
		if err := d.Validate(); err != nil {
			return fmt.Errorf("automation %q: %w", name, err)
		}
	}
	return nil
}

func (d Definition) Validate() error {
	switch automation.ScheduleType(d.Schedule.Type) {
	case "", automation.ScheduleMinutes, automation.ScheduleHourly, automation.ScheduleDaily, automation.ScheduleWeekly:
	default:
		return fmt.Errorf("unknown schedule type %q", d.Schedule.Type)
	}
	if d.Schedule.Hour < 0 || d.Schedule.Hour > 23 {
		return fmt.Errorf("schedule hour %d out of range", d.Schedule.Hour)
	}
	if w := d.Schedule.Weekday; w != nil && (*w < 0 || *w > 6) {
		return fmt.Errorf("schedule weekday %d out of range", *w)
	}
	switch automation.VideoSource(d.Source.Kind) {
	case "", automation.SourceBunny, automation.SourceGCS, automation.SourceManual:
	default:
		return fmt.Errorf("unknown video source %q", d.Source.Kind)
	}
	if d.Source.PerRun < 0 || d.Source.PerRun > automation.MaxVideosPerRun {
		return fmt.Errorf("per_run must be between %d and %d", automation.MinVideosPerRun, automation.MaxVideosPerRun)
	}
	switch automation.PublishMode(d.Publish.Mode) {
	case "", automation.PublishImmediate, automation.PublishScheduled, automation.PublishOffset:
	default:
		return fmt.Errorf("unknown publish mode %q", d.Publish.Mode)
	}
	if d.Publish.Enabled && len(d.Publish.Accounts) == 0 {
		return fmt.Errorf("publish enabled without accounts")
	}
	return nil
}

// ToAutomation maps the definition onto a new automation row with defaults
// applied.
func (d Definition) ToAutomation() *types.Automation {
	weekday := int(time.Monday)
	if d.Schedule.Weekday != nil {
		weekday = *d.Schedule.Weekday
	}
	a := &types.Automation{
		Name:                    strings.TrimSpace(d.Name),
		Enabled:                 d.Enabled,
		ScheduleType:            automation.ScheduleType(d.Schedule.Type),
		ScheduleHour:            d.Schedule.Hour,
		ScheduleEveryMinutes:    d.Schedule.EveryMinutes,
		ScheduleWeekday:         weekday,
		VideoSource:             automation.VideoSource(d.Source.Kind),
		SourcePrefix:            d.Source.Prefix,
		ManualVideoURLs:         strings.Join(d.Source.URLs, "\n"),
		VideoDaysFilter:         d.Source.DaysFilter,
		VideoStartDate:          d.Source.StartDate,
		VideoEndDate:            d.Source.EndDate,
		VideosPerRun:            d.Source.PerRun,
		ShortDuration:           d.Short.Duration,
		ShortAspectRatio:        d.Short.AspectRatio,
		AITaglinesEnabled:       d.Branding.AITaglines,
		AITaglinePrompt:         d.Branding.Prompt,
		BrandingTextTop:         d.Branding.Top,
		BrandingTextBottom:      d.Branding.Bottom,
		RandomWords:             automation.EncodeStrings(d.Branding.Words),
		WhisperEnabled:          d.Subtitles.Enabled,
		WhisperLanguage:         d.Subtitles.Language,
		PublishEnabled:          d.Publish.Enabled,
		PublishAccountIDs:       automation.EncodeStrings(d.Publish.Accounts),
		PublishScheduleMode:     automation.PublishMode(d.Publish.Mode),
		PublishScheduleAt:       d.Publish.At,
		PublishScheduleTimezone: d.Publish.Timezone,
		PublishOffsetMinutes:    d.Publish.OffsetMinutes,
		PublishSpreadMinutes:    d.Publish.SpreadMinutes,
		RotationEnabled:         d.Rotation.Enabled,
		RotationAutoReset:       d.Rotation.AutoReset,
		RotationShuffle:         d.Rotation.Shuffle,
	}
	a.ApplyDefaults()
	return a
}

// FromAutomation is the inverse of ToAutomation, used by export.
func FromAutomation(a *types.Automation) Definition {
	var urls []string
	for _, line := range strings.Split(a.ManualVideoURLs, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	weekday := a.ScheduleWeekday
	return Definition{
		Name:    a.Name,
		Enabled: a.Enabled,
		Schedule: Schedule{
			Type:         string(a.ScheduleType),
			Hour:         a.ScheduleHour,
			EveryMinutes: a.ScheduleEveryMinutes,
			Weekday:      &weekday,
		},
		Source: Source{
			Kind:       string(a.VideoSource),
			Prefix:     a.SourcePrefix,
			URLs:       urls,
			DaysFilter: a.VideoDaysFilter,
			StartDate:  a.VideoStartDate,
			EndDate:    a.VideoEndDate,
			PerRun:     a.VideosPerRun,
		},
		Short: Short{Duration: a.ShortDuration, AspectRatio: a.ShortAspectRatio},
		Branding: Branding{
			AITaglines: a.AITaglinesEnabled,
			Prompt:     a.AITaglinePrompt,
			Top:        a.BrandingTextTop,
			Bottom:     a.BrandingTextBottom,
			Words:      a.Words(),
		},
		Subtitles: Subtitles{Enabled: a.WhisperEnabled, Language: a.WhisperLanguage},
		Publish: Publish{
			Enabled:       a.PublishEnabled,
			Accounts:      a.AccountIDs(),
			Mode:          string(a.PublishScheduleMode),
			At:            a.PublishScheduleAt,
			Timezone:      a.PublishScheduleTimezone,
			OffsetMinutes: a.PublishOffsetMinutes,
			SpreadMinutes: a.PublishSpreadMinutes,
		},
		Rotation: Rotation{
			Enabled:   a.RotationEnabled,
			AutoReset: a.RotationAutoReset,
			Shuffle:   a.RotationShuffle,
		},
	}
}

type Result struct {
	Created []string
	Updated []string
}

// Import upserts every definition by name. Existing rows keep their run state
// and rotation cycle.
func Import(ctx context.Context, repo repoauto.AutomationRepo, f *File, log *logger.Logger) (Result, error) {
	var res Result
	if f == nil {
		return res, nil
	}
	if err := f.Validate(); err != nil {
		return res, err
	}
	dbc := dbctx.New(ctx)
	for _, d := range f.Automations {
		saved, created, err := repo.SaveByName(dbc, d.ToAutomation())
		if err != nil {
			return res, fmt.Errorf("save automation %q: %w", d.Name, err)
		}
		if created {
			res.Created = append(res.Created, saved.Name)
		} else {
			res.Updated = append(res.Updated, saved.Name)
		}
		if log != nil {
			log.Info("Automation definition imported", "automation_id", saved.ID, "name", saved.Name, "created", created)
		}
	}
	return res, nil
}

// Export writes every automation as a definitions file.
func Export(ctx context.Context, repo repoauto.AutomationRepo, w io.Writer) error {
	rows, err := repo.List(dbctx.New(ctx))
	if err != nil {
		return err
	}
	f := File{Automations: make([]Definition, 0, len(rows))}
	for _, a := range rows {
		f.Automations = append(f.Automations, FromAutomation(a))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}
