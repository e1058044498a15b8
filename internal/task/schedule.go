package task

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Recurrences are standard five-field expressions. Descriptors such as
// @hourly and the optional seconds field are rejected.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func ParseRecurrence(expr string) (cron.Schedule, error) {
	return cronParser.Parse(strings.TrimSpace(expr))
}

// NextRunAfter returns the first occurrence of expr strictly after t,
// evaluated in loc.
func NextRunAfter(expr string, t time.Time, loc *time.Location) (time.Time, error) {
	sched, err := ParseRecurrence(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t.In(loc)), nil
}
