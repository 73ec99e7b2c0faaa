package subscription

import (
	"time"

	"github.com/dmitrymomot/restokit/pkg/plans"
)

// Date truncates t to its calendar date at UTC midnight.
// The date is taken in t's own location, so 23:30 in Tokyo stays on the Tokyo day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndDate returns the last covered date for a period starting on start.
// Monthly adds one calendar month and yearly one calendar year; a start day
// missing from the target month clamps to that month's last day
// (Jan 31 -> Feb 29 in a leap year, Feb 29 -> Feb 28 the next year).
func EndDate(start time.Time, cycle plans.BillingCycle) time.Time {
	start = Date(start)
	y, m, d := start.Date()
	switch cycle {
	case plans.Yearly:
		y++
	default:
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return time.Date(y, m, min(d, daysInMonth(y, m)), 0, 0, 0, 0, time.UTC)
}

// ExpiryCutoff returns the date before which an end date counts as lapsed:
// a subscription expires once now is past EndDate + grace.
func ExpiryCutoff(now time.Time, grace time.Duration) time.Time {
	return Date(now).Add(-grace)
}

// TrialCutoff returns the creation time before which a trial has run out.
func TrialCutoff(now time.Time, window time.Duration) time.Time {
	return Date(now).Add(-window)
}

// TrialExpired reports whether a trial that started at createdAt is over at now.
func TrialExpired(createdAt, now time.Time, window time.Duration) bool {
	return createdAt.Before(TrialCutoff(now, window))
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
