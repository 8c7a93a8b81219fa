package hours

import (
	"fmt"
	"time"
)

// The ESIOS API publishes prices in 0-24h sets aligned to the main
// timezone in Spain, so every day-boundary decision is made in this zone.
var referenceLoc *time.Location

func init() {
	var err error
	referenceLoc, err = time.LoadLocation("Europe/Madrid")
	if err != nil {
		panic(fmt.Sprintf("failed to load Madrid location: %v", err))
	}
}

// Reference returns the provider reference timezone (Europe/Madrid).
func Reference() *time.Location {
	return referenceLoc
}

// UtcHour normalizes any timestamp to the canonical storage key:
// UTC, truncated to the hour. This is the only place where timezone
// assumptions on inputs are resolved, all series keys go through it.
func UtcHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// Utc converts a timestamp to UTC without truncation.
func Utc(t time.Time) time.Time {
	return t.UTC()
}

// LocalMidnight returns the start of the calendar day of t in loc.
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// SameLocalDate reports whether a and b fall on the same calendar day in loc.
func SameLocalDate(a, b time.Time, loc *time.Location) bool {
	la, lb := a.In(loc), b.In(loc)
	ay, am, ad := la.Date()
	by, bm, bd := lb.Date()
	return ay == by && am == bm && ad == bd
}

// IsTomorrow reports whether ts belongs to a later calendar position than
// ref when both are seen in loc, comparing ISO year, ISO week and weekday
// field by field in that priority order.
func IsTomorrow(ts, ref time.Time, loc *time.Location) bool {
	ty, tw, td := isoCalendar(ts.In(loc))
	ry, rw, rd := isoCalendar(ref.In(loc))
	return ty > ry || tw > rw || td > rd
}

func isoCalendar(t time.Time) (year, week, weekday int) {
	year, week = t.ISOWeek()
	weekday = int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO numbering, Sunday is 7
	}
	return year, week, weekday
}
