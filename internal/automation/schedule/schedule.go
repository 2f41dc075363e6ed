package schedule

import (
	"time"

	"github.com/yungbote/reelforge-backend/internal/domain/automation"
)

// Spec is the schedule portion of an automation.
type Spec struct {
	Type         automation.ScheduleType
	Hour         int
	EveryMinutes int
	Weekday      int
}

func SpecOf(a *automation.Automation) Spec {
	if a == nil {
		return Spec{Type: automation.ScheduleDaily, Hour: 9}
	}
	return Spec{
		Type:         a.ScheduleType,
		Hour:         a.ScheduleHour,
		EveryMinutes: a.ScheduleEveryMinutes,
		Weekday:      a.ScheduleWeekday,
	}
}

type Calculator struct {
	Now      func() time.Time
	Location *time.Location
}

func New(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{Now: time.Now, Location: loc}
}

func (c *Calculator) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Calculator) loc() *time.Location {
	if c == nil || c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Next returns the next run time, in UTC, strictly after the current clock.
func (c *Calculator) Next(spec Spec) time.Time {
	now := c.now().In(c.loc())
	hour := clamp(spec.Hour, 0, 23)

	var next time.Time
	switch spec.Type {
	case automation.ScheduleMinutes:
		every := spec.EveryMinutes
		if every < 1 {
			every = 1
		}
		next = now.Add(time.Duration(every) * time.Minute)
	case automation.ScheduleHourly:
		next = now.Add(time.Hour)
	case automation.ScheduleWeekly:
		weekday := time.Weekday(clamp(spec.Weekday, 0, 6))
		ahead := (int(weekday) - int(now.Weekday()) + 7) % 7
		next = atHour(now, ahead, hour)
		if !next.After(now) {
			next = atHour(now, ahead+7, hour)
		}
	default:
		next = atHour(now, 0, hour)
		if !now.Before(next) {
			next = atHour(now, 1, hour)
		}
	}
	return next.UTC()
}

// Due reports whether a run scheduled at next should start now. Unset means due.
func (c *Calculator) Due(next *time.Time) bool {
	if next == nil || next.IsZero() {
		return true
	}
	return !next.After(c.now())
}

func atHour(now time.Time, addDays, hour int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+addDays, hour, 0, 0, 0, now.Location())
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
