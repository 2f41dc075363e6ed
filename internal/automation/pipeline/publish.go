package pipeline

import (
	"strings"
	"time"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
)

var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// PublishTime returns the UTC time a post should go live, or nil to publish
// immediately. ordinal is the item's position in the batch and delays the
// post by ordinal*spread minutes in scheduled and offset modes.
func PublishTime(a *types.Automation, now time.Time, ordinal int) *time.Time {
	spread := time.Duration(max(a.PublishSpreadMinutes, 0)*max(ordinal, 0)) * time.Minute
	switch a.PublishScheduleMode {
	case automation.PublishScheduled:
		at, ok := parseScheduleAt(a.PublishScheduleAt, a.PublishScheduleTimezone)
		if !ok || !at.After(now) {
			return nil
		}
		at = at.Add(spread).UTC()
		return &at
	case automation.PublishOffset:
		if a.PublishOffsetMinutes <= 0 {
			return nil
		}
		at := now.Add(time.Duration(a.PublishOffsetMinutes)*time.Minute + spread).UTC()
		return &at
	default:
		return nil
	}
}

func parseScheduleAt(raw, tz string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	loc := time.UTC
	if tz = strings.TrimSpace(tz); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
