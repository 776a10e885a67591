package queue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed cron expression bound to a timezone.
type Schedule struct {
	Expr     string
	Timezone string

	schedule cron.Schedule
	location *time.Location
}

// ParseSchedule validates a standard five field cron expression (descriptors
// such as @hourly allowed) and an IANA timezone. An empty timezone means UTC.
func ParseSchedule(expr, timezone string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression is required")
	}

	if timezone == "" {
		timezone = "UTC"
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid timezone '%s': %w", timezone, err)
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression '%s': %w", expr, err)
	}

	return Schedule{Expr: expr, Timezone: timezone, schedule: schedule, location: location}, nil
}

// Next returns the first activation strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Spec returns the expression with its timezone prefix, as understood by cron.Cron.
func (s Schedule) Spec() string {
	return "CRON_TZ=" + s.Timezone + " " + s.Expr
}
