package booking

import (
	"fmt"
	"strings"
	"time"
)

// NextWeekday returns the calendar date (midnight in from's location) of the
// next wd on or after from. When includeToday is false and from already falls
// on wd, the date a week later is returned.
func NextWeekday(from time.Time, wd time.Weekday, includeToday bool) time.Time {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	ahead := (int(wd) - int(day.Weekday()) + 7) % 7
	if ahead == 0 && !includeToday {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// OnDate places a clock time on date's calendar day in loc.
func OnDate(date time.Time, c Clock, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}
