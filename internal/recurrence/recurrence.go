// Package recurrence computes the next occurrence of a recurring task.
package recurrence

import (
	"encoding/json"
	"strings"
	"time"

	"taskplanner/internal/model"
)

// Next returns the due date of the occurrence after task's current one. It
// reports false when the series cannot continue: no due date, no recurrence
// type, an unusable CUSTOM day-set, or a next date past the end date.
// Arithmetic happens in the due date's own location.
func Next(task *model.Task) (time.Time, bool) {
	if task == nil || task.DueDate == nil || task.RecurrenceType == "" {
		return time.Time{}, false
	}
	due := *task.DueDate
	n := task.Interval()

	var next time.Time
	switch task.RecurrenceType {
	case model.RecurDaily:
		next = due.AddDate(0, 0, n)
	case model.RecurWeekly:
		next = due.AddDate(0, 0, 7*n)
	case model.RecurMonthly:
		next = AddMonths(due, n)
	case model.RecurYearly:
		next = AddMonths(due, 12*n)
	case model.RecurCustom:
		days, ok := ParseDays(task.RecurrenceDays)
		if !ok {
			return time.Time{}, false
		}
		next = nextCustom(due, n, days)
	default:
		return time.Time{}, false
	}

	if task.RecurrenceEndDate != nil && next.After(*task.RecurrenceEndDate) {
		return time.Time{}, false
	}
	return next, true
}

// AddMonths adds n calendar months, clamping the day to the last valid day of
// the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Month(), first.Year()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(month time.Month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var weekdayCodes = map[string]time.Weekday{
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
	"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

// ParseDays decodes a JSON day-set such as ["MON","WED"]. Full English day
// names are accepted too. Empty or unknown entries make the set unusable.
func ParseDays(raw []byte) (map[time.Weekday]bool, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil || len(codes) == 0 {
		return nil, false
	}
	days := make(map[time.Weekday]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if len(c) > 3 {
			c = c[:3]
		}
		wd, ok := weekdayCodes[c]
		if !ok {
			return nil, false
		}
		days[wd] = true
	}
	return days, true
}

// DayCodes renders a day-set as canonical codes, Monday first.
func DayCodes(days map[time.Weekday]bool) []string {
	codes := make([]string, 0, len(days))
	for i := 0; i < 7; i++ {
		wd := time.Weekday((i + 1) % 7)
		if !days[wd] {
			continue
		}
		for code, d := range weekdayCodes {
			if d == wd {
				codes = append(codes, code)
				break
			}
		}
	}
	return codes
}

// nextCustom finds the first listed weekday after due, either later in due's
// Monday-based week or in the week n weeks on.
func nextCustom(due time.Time, n int, days map[time.Weekday]bool) time.Time {
	offset := isoOffset(due.Weekday())
	for d := 1; offset+d < 7; d++ {
		c := due.AddDate(0, 0, d)
		if days[c.Weekday()] {
			return c
		}
	}
	weekStart := due.AddDate(0, 0, 7*n-offset)
	for d := 0; d < 7; d++ {
		c := weekStart.AddDate(0, 0, d)
		if days[c.Weekday()] {
			return c
		}
	}
	return weekStart
}

func isoOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
