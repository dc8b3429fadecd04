// Package recur computes next-occurrence dates for recurring tasks and
// materializes successor task instances. Everything here is best-effort:
// a malformed or unrecognized recurrence configuration yields a "no
// occurrence" result, never an error, so a task silently stops recurring
// instead of breaking its caller.
package recur

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/tend/pkg/models"
)

// NextOccurrence returns the first occurrence strictly after base for the
// given pattern. ok is false when the configuration is unrecognized.
func NextOccurrence(rec models.Recurrence, base time.Time) (next time.Time, ok bool) {
	base = models.DateOnly(base)

	switch rec.Type {
	case models.RecurDaily:
		return base.AddDate(0, 0, 1), true

	case models.RecurWeekly:
		if len(rec.DaysOfWeek) == 0 {
			return base.AddDate(0, 0, 7), true
		}
		return nextWeekday(base, rec.DaysOfWeek)

	case models.RecurBiweekly:
		return base.AddDate(0, 0, 14), true

	case models.RecurMonthly:
		if rec.NthWeekday != nil {
			return nextNthWeekday(base, *rec.NthWeekday)
		}
		if rec.DayOfMonth > 0 {
			return nextDayOfMonth(base, rec.DayOfMonth), true
		}
		return addMonthsClamped(base, 1), true

	case models.RecurYearly:
		if rec.DayOfYear != "" {
			return nextDayOfYear(base, rec.DayOfYear)
		}
		return addYearsClamped(base, 1), true
	}

	return time.Time{}, false
}

// ShouldEnd reports whether recurrence is terminated: the end date is set
// and today (date-only) is strictly after it. An unparseable end date
// terminates recurrence as well; the configuration is no longer valid.
func ShouldEnd(t *models.Task, today time.Time) bool {
	if t.RecurrenceEndDate == "" {
		return false
	}
	end, err := time.Parse(models.DateLayout, t.RecurrenceEndDate)
	if err != nil {
		return true
	}
	return models.DateOnly(today).After(end)
}

// NextInstance synthesizes the successor of a recurring task: a new ID, the
// next due date, defer date cleared, completion state reset, dependencies
// not inherited, subtasks reset to uncompleted copies. Returns nil when the
// task is not recurring, recurrence has ended, or no next occurrence can be
// computed.
func NextInstance(t *models.Task, today time.Time) *models.Task {
	if !t.IsRecurring() || ShouldEnd(t, today) {
		return nil
	}

	base := models.DateOnly(today)
	if t.DueDate != "" {
		due, err := time.Parse(models.DateLayout, t.DueDate)
		if err != nil {
			return nil
		}
		base = due
	}

	next, ok := NextOccurrence(t.Recurrence, base)
	if !ok {
		return nil
	}

	n := t.Clone()
	n.ID = uuid.New().String()
	n.DueDate = next.Format(models.DateLayout)
	n.DeferDate = ""
	n.Reopen(t.Status)
	n.RecurrenceParentID = t.ID
	n.WaitingForTaskIDs = nil
	n.WaitingForDescription = ""
	for i := range n.Subtasks {
		n.Subtasks[i].Completed = false
	}
	n.CreatedAt = time.Time{}
	n.UpdatedAt = time.Time{}
	return n
}

// nextWeekday finds the smallest day-of-week in the set strictly after the
// base's day-of-week, wrapping to the following week if none remain. days
// is expected sorted ascending; out-of-range entries invalidate the set.
func nextWeekday(base time.Time, days []int) (time.Time, bool) {
	for _, d := range days {
		if d < 0 || d > 6 {
			return time.Time{}, false
		}
	}

	dow := int(base.Weekday())
	for _, d := range days {
		if d > dow {
			return base.AddDate(0, 0, d-dow), true
		}
	}
	// Wrap to the first configured day next week.
	return base.AddDate(0, 0, 7-dow+days[0]), true
}

// nextDayOfMonth returns the next date whose day-of-month is dom, clamped
// to the month's length; the current month is used when dom is still ahead
// of base.
func nextDayOfMonth(base time.Time, dom int) time.Time {
	candidate := clampToMonth(base.Year(), base.Month(), dom)
	if candidate.After(base) {
		return candidate
	}
	y, m := base.Year(), base.Month()+1
	return clampToMonth(y, m, dom)
}

// nextNthWeekday returns the n-th weekday of the base month if still ahead,
// otherwise of the following month. n == 5 means the month's last weekday.
func nextNthWeekday(base time.Time, nw models.NthWeekday) (time.Time, bool) {
	if nw.N < 1 || nw.N > 5 || nw.Weekday < 0 || nw.Weekday > 6 {
		return time.Time{}, false
	}

	candidate := nthWeekdayOfMonth(base.Year(), base.Month(), nw)
	if candidate.After(base) {
		return candidate, true
	}
	// time.Date normalizes a December rollover.
	first := time.Date(base.Year(), base.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return nthWeekdayOfMonth(first.Year(), first.Month(), nw), true
}

// nextDayOfYear parses "MM-DD" and returns its occurrence this year if
// still ahead of base, otherwise next year. Feb 29 clamps to Feb 28 in
// non-leap years.
func nextDayOfYear(base time.Time, dayOfYear string) (time.Time, bool) {
	var month, day int
	if _, err := fmt.Sscanf(dayOfYear, "%d-%d", &month, &day); err != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	candidate := clampToMonth(base.Year(), time.Month(month), day)
	if candidate.After(base) {
		return candidate, true
	}
	return clampToMonth(base.Year()+1, time.Month(month), day), true
}

// addMonthsClamped adds months, clamping to the last valid day of the
// target month instead of letting time.AddDate normalize Jan 31 into
// March 3.
func addMonthsClamped(base time.Time, months int) time.Time {
	y, m, d := base.Date()
	return clampToMonth(y, m+time.Month(months), d)
}

// addYearsClamped adds years with the Feb-29 clamp for non-leap targets.
func addYearsClamped(base time.Time, years int) time.Time {
	y, m, d := base.Date()
	return clampToMonth(y+years, m, d)
}

// clampToMonth builds a date, clamping day to the length of the (possibly
// out-of-range, normalized) month.
func clampToMonth(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// nthWeekdayOfMonth returns the nw.N-th nw.Weekday of the given month;
// N == 5 selects the last occurrence.
func nthWeekdayOfMonth(year int, month time.Month, nw models.NthWeekday) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (nw.Weekday - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (nw.N-1)*7

	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		// Fifth occurrence requested but the month only has four.
		day -= 7
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
