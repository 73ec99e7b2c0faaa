package branch

import (
	"errors"
	"fmt"
	"time"
)

// TimeOfDay is minutes since local midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Join(ErrInvalidWindow, fmt.Errorf("time of day %q: %w", s, err))
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// OperatingWindow is a daily opening interval in the branch's local time.
// Closes before Opens describes a window that crosses midnight (18:00-02:00).
// Opens equal to Closes means open around the clock.
type OperatingWindow struct {
	Opens  TimeOfDay
	Closes TimeOfDay
}

// IsOpenAt reports whether the window contains t as seen in loc.
func (w OperatingWindow) IsOpenAt(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	m := TimeOfDay(local.Hour()*60 + local.Minute())
	switch {
	case w.Opens == w.Closes:
		return true
	case w.Opens < w.Closes:
		return m >= w.Opens && m < w.Closes
	default:
		return m >= w.Opens || m < w.Closes
	}
}

// Valid reports whether both bounds fall inside a day.
func (w OperatingWindow) Valid() bool {
	return w.Opens >= 0 && w.Opens < 24*60 && w.Closes >= 0 && w.Closes < 24*60
}
