package domain

import (
	"fmt"
	"strings"
	"time"
)

// Window is a half-open [Start, End) interval within one calendar day,
// expressed as offsets from midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// ParseClock parses a wall-clock time such as "09:00" or "09:00:00" as
// returned by Postgres TIME::text.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// ParseWindow builds a Window from two wall-clock strings. The end must be
// strictly after the start; overnight windows are not supported.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("end time %s must be after start time %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}

// Overlaps reports whether two half-open windows intersect. Abutting
// windows such as [9,12) and [12,17) do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && other.Start < w.End
}

// Covers reports whether w fully contains other.
func (w Window) Covers(other Window) bool {
	return w.Start <= other.Start && w.End >= other.End
}

// Hours returns the window length in hours.
func (w Window) Hours() float64 {
	return (w.End - w.Start).Hours()
}

// String formats the window as "HH:MM-HH:MM".
func (w Window) String() string {
	return formatClock(w.Start) + "-" + formatClock(w.End)
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}
