package domain

import "time"

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// MaxMonthWeeks bounds the week buckets of a monthly view
const MaxMonthWeeks = 5

// Date strips the clock from t, keeping its calendar day as seen in t's
// own location. Postgres DATE values arrive as UTC midnight already.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return Date(now.In(loc))
}

// IsStrictlyFuture reports whether date falls after today in loc.
// Same-day dates are not in the future.
func IsStrictlyFuture(date, now time.Time, loc *time.Location) bool {
	return Date(date).After(Today(now, loc))
}

// WeekStart returns the Monday of the ISO week containing date.
func WeekStart(date time.Time) time.Time {
	d := Date(date)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekEnd returns the Sunday of the week starting at weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return Date(weekStart).AddDate(0, 0, 6)
}

// MonthWeeks returns the Mondays of the weeks overlapping the given month,
// at most MaxMonthWeeks of them.
func MonthWeeks(year int, month time.Month) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	var weeks []time.Time
	for ws := WeekStart(first); !ws.After(last) && len(weeks) < MaxMonthWeeks; ws = ws.AddDate(0, 0, 7) {
		weeks = append(weeks, ws)
	}
	return weeks
}
