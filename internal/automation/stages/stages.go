// Package stages holds the contracts between the pipeline executor and the
// adapters that talk to video sources, AI providers, ffmpeg and the
// publishing service.
package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceAuth        = errors.New("source authentication failed")

	ErrQuotaExceeded = errors.New("provider quota exceeded")
	ErrProvider      = errors.New("provider error")
	ErrParse         = errors.New("provider response could not be parsed")

	ErrTranscription = errors.New("transcription failed")
	ErrEncode        = errors.New("encode failed")
	ErrNotConfigured = errors.New("not configured")
)

// SourceConfig is the source section of an automation plus the clock used
// for date windows.
type SourceConfig struct {
	Source     automation.VideoSource
	Prefix     string
	ManualURLs string
	DaysFilter int
	StartDate  string
	EndDate    string
	Now        time.Time
}

func SourceConfigOf(a *automation.Automation, now time.Time) SourceConfig {
	return SourceConfig{
		Source:     a.VideoSource,
		Prefix:     a.SourcePrefix,
		ManualURLs: a.ManualVideoURLs,
		DaysFilter: a.VideoDaysFilter,
		StartDate:  a.VideoStartDate,
		EndDate:    a.VideoEndDate,
		Now:        now,
	}
}

// Window resolves the upload-time window. A date range (YYYY-MM-DD, end day
// inclusive) wins when both ends parse and start <= end; otherwise the last
// DaysFilter days (30 when unset).
func (c SourceConfig) Window() (from, to time.Time) {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	start, errS := time.Parse("2006-01-02", c.StartDate)
	end, errE := time.Parse("2006-01-02", c.EndDate)
	if errS == nil && errE == nil && !start.After(end) {
		return start, end.AddDate(0, 0, 1)
	}
	days := c.DaysFilter
	if days <= 0 {
		days = 30
	}
	return now.AddDate(0, 0, -days), now
}

type Provider interface {
	Fetch(ctx context.Context, src SourceConfig) ([]rotation.Candidate, error)
	Download(ctx context.Context, c rotation.Candidate, dest string) (int64, error)
}

type TaglineRequest struct {
	Prompt         string
	VideoTitle     string
	VideoFilename  string
	Recent         []string
	Words          []string
	BrandingTop    string
	BrandingBottom string
}

type Tagline struct {
	Top    string `json:"top"`
	Bottom string `json:"bottom"`
	Emoji  string `json:"emoji,omitempty"`
}

func (t Tagline) Empty() bool { return t.Top == "" && t.Bottom == "" }

type TaglineGenerator interface {
	Generate(ctx context.Context, req TaglineRequest) (Tagline, error)
}

type Transcriber interface {
	// Transcribe writes an SRT file next to mediaPath and returns its path.
	Transcribe(ctx context.Context, mediaPath, language string) (string, error)
}

type ShortOptions struct {
	AspectRatio     string
	DurationSeconds int
	TopText         string
	BottomText      string
	Emoji           string
	SubtitlesPath   string
	OutputDir       string
	OutputName      string
	// ScratchDir receives intermediate files such as the banner PNG.
	ScratchDir string
}

type Transformer interface {
	CreateShort(ctx context.Context, in string, opts ShortOptions) (string, error)
}

type PublishRequest struct {
	MediaPath   string
	Caption     string
	AccountIDs  []string
	ScheduledAt *time.Time
}

type PublishResult struct {
	ExternalID string
	Status     string
	Raw        json.RawMessage
}

// PublishError carries the provider's HTTP status and message.
type PublishError struct {
	StatusCode int
	Message    string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed (status %d): %s", e.StatusCode, e.Message)
}

type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
	PostStatus(ctx context.Context, externalID string) (string, error)
}
