package cron

import (
	"fmt"
	"time"
)

// Schedule determines when a job should run next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type interval time.Duration

func (d interval) Next(from time.Time) time.Time { return from.Add(time.Duration(d)) }

func (d interval) String() string { return "every " + time.Duration(d).String() }

// wallClock fires at a fixed minute of every hour, or at a fixed hour and
// minute of every day when daily is set. Times are resolved in loc.
type wallClock struct {
	daily  bool
	hour   int
	minute int
	loc    *time.Location
}

func (w wallClock) Next(from time.Time) time.Time {
	local := from.In(w.loc)
	y, m, d := local.Date()

	if !w.daily {
		next := time.Date(y, m, d, local.Hour(), w.minute, 0, 0, w.loc)
		if !next.After(local) {
			next = next.Add(time.Hour)
		}
		return next
	}

	next := time.Date(y, m, d, w.hour, w.minute, 0, 0, w.loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, w.hour, w.minute, 0, 0, w.loc)
	}
	return next
}

func (w wallClock) String() string {
	if !w.daily {
		return fmt.Sprintf("hourly at :%02d", w.minute)
	}
	return fmt.Sprintf("daily at %02d:%02d %s", w.hour, w.minute, w.loc)
}

// Every runs a job at a fixed interval. It panics if d is not positive.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic(fmt.Sprintf("cron: non-positive interval %v", d))
	}
	return interval(d)
}

// DailyAt runs a job once a day at hour:minute UTC, the clock subscription
// expiry dates are kept in.
func DailyAt(hour, minute int) Schedule {
	return DailyAtIn(hour, minute, time.UTC)
}

// DailyAtIn is DailyAt in loc. A nil loc means UTC. It panics on an
// out-of-range hour or minute.
func DailyAtIn(hour, minute int, loc *time.Location) Schedule {
	checkClock(hour, minute)
	if loc == nil {
		loc = time.UTC
	}
	return wallClock{daily: true, hour: hour, minute: minute, loc: loc}
}

// HourlyAt runs a job every hour at the given minute. It panics on an
// out-of-range minute.
func HourlyAt(minute int) Schedule {
	checkClock(0, minute)
	return wallClock{minute: minute, loc: time.UTC}
}

func checkClock(hour, minute int) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("cron: invalid clock time %02d:%02d", hour, minute))
	}
}
