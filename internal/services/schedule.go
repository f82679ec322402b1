package services

import (
	"sort"
	"time"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// This file is the due-task calculator: pure date arithmetic from a schedule
// definition and a reference date to the ordered occurrence dates that are
// currently due. No storage access, no clock access; "today" is always an
// explicit argument so per-user timezone resolution happens at the boundary.

// mondayIndex maps Go's Sunday-based weekday onto the Monday-based index
// used by Schedule.DayOfWeek (0=Monday .. 6=Sunday).
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// DueOccurrences returns the occurrence dates of s that are due on or
// before today, oldest first. Results never precede the cohort start nor
// exceed the cohort end: any today past the end behaves exactly like the
// end date itself, and any today before the start yields nothing.
//
// For non-cumulative DAILY and WEEKLY schedules only the latest occurrence
// is returned, whether or not it was completed; filtering against the
// response ledger happens in the aggregator on top of this.
func DueOccurrences(s *Schedule, c *Cohort, today timeutil.Date) []timeutil.Date {
	if today.Before(c.StartDate) {
		return nil
	}
	limit := today
	if limit.After(c.EndDate) {
		limit = c.EndDate
	}
	switch s.Frequency {
	case FrequencyOnce:
		return onceOccurrences(s, c, limit)
	case FrequencyDaily:
		return dailyOccurrences(s, c, limit)
	case FrequencyWeekly:
		return weeklyOccurrences(s, c, limit)
	}
	return nil
}

func onceOccurrences(s *Schedule, c *Cohort, limit timeutil.Date) []timeutil.Date {
	due := c.AnchorDate(s.OffsetFrom).AddDays(s.OffsetDays)
	if due.After(limit) {
		return nil
	}
	return []timeutil.Date{due}
}

func dailyOccurrences(s *Schedule, c *Cohort, limit timeutil.Date) []timeutil.Date {
	if !s.Cumulative {
		return []timeutil.Date{limit}
	}
	out := make([]timeutil.Date, 0, limit.DaysSince(c.StartDate)+1)
	for d := c.StartDate; !d.After(limit); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func weeklyOccurrences(s *Schedule, c *Cohort, limit timeutil.Date) []timeutil.Date {
	var out []timeutil.Date
	for d := firstWeekday(c.StartDate, s.DayOfWeek); !d.After(limit); d = d.AddDays(7) {
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil
	}
	if !s.Cumulative {
		return out[len(out)-1:]
	}
	return out
}

// firstWeekday returns the first date on or after start whose weekday is
// dow (Monday-based index).
func firstWeekday(start timeutil.Date, dow int) timeutil.Date {
	return start.AddDays((dow - mondayIndex(start.Weekday()) + 7) % 7)
}

// ScheduleAnchor is the date a schedule first produces an occurrence,
// used for stable display ordering of definitions.
func ScheduleAnchor(s *Schedule, c *Cohort) timeutil.Date {
	switch s.Frequency {
	case FrequencyOnce:
		return c.AnchorDate(s.OffsetFrom).AddDays(s.OffsetDays)
	case FrequencyWeekly:
		return firstWeekday(c.StartDate, s.DayOfWeek)
	}
	return c.StartDate
}

// scheduleRank orders frequencies for display when occurrence dates tie:
// start-anchored ONCE tasks first, then daily, then weekly, with
// end-anchored ONCE tasks (exit surveys) last.
func scheduleRank(s *Schedule) int {
	switch s.Frequency {
	case FrequencyOnce:
		if s.OffsetFrom == AnchorCohortEnd || s.OffsetFrom == AnchorEnrollEnd {
			return 4
		}
		return 1
	case FrequencyDaily:
		return 2
	}
	return 3
}

// SortSchedules orders definitions by anchor date, then frequency rank,
// then id. The task aggregator applies it before evaluation; stores keep
// listing schedules in creation order so design exports mirror imports.
func SortSchedules(schedules []*Schedule, c *Cohort) {
	sort.SliceStable(schedules, func(i, j int) bool {
		ai, aj := ScheduleAnchor(schedules[i], c), ScheduleAnchor(schedules[j], c)
		if !ai.Equal(aj) {
			return ai.Before(aj)
		}
		ri, rj := scheduleRank(schedules[i]), scheduleRank(schedules[j])
		if ri != rj {
			return ri < rj
		}
		return schedules[i].ID < schedules[j].ID
	})
}

// ValidateSchedule checks a definition against its cohort. Malformed
// definitions are a configuration error at creation time; evaluation
// assumes this has passed.
func ValidateSchedule(s *Schedule, c *Cohort) error {
	switch s.Frequency {
	case FrequencyDaily:
		return nil
	case FrequencyWeekly:
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			return NewInvalidError("weekly schedule requires day_of_week between 0 (Monday) and 6 (Sunday)")
		}
		return nil
	case FrequencyOnce:
		switch s.OffsetFrom {
		case AnchorEnrollStart, AnchorEnrollEnd, AnchorCohortStart, AnchorCohortEnd:
		default:
			return NewInvalidError("once schedule requires a valid offset_from anchor")
		}
		due := c.AnchorDate(s.OffsetFrom).AddDays(s.OffsetDays)
		if due.Before(c.StartDate) || due.After(c.EndDate) {
			return NewInvalidError("once schedule due date falls outside the cohort window")
		}
		return nil
	}
	return NewInvalidError("unknown schedule frequency")
}
