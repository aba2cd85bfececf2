package utils

import (
	"time"
	_ "time/tzdata"
)

// InTimezone converts t to the named zone, falling back to UTC for unknown names.
func InTimezone(t time.Time, tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc)
}
