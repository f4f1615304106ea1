package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultInterval = 180 * time.Second

// Schedule yields the next cycle time given the time the previous cycle
// finished.
type Schedule interface {
	cron.Schedule
	fmt.Stringer
}

// IntervalSchedule waits a fixed duration after each cycle completes.
type IntervalSchedule struct {
	Interval time.Duration
}

func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s IntervalSchedule) String() string {
	return s.Interval.String()
}

// CronSchedule runs at the next matching time of a standard cron expression.
type CronSchedule struct {
	spec     string
	schedule cron.Schedule
}

func ParseCronSchedule(spec string) (CronSchedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return CronSchedule{spec: spec, schedule: s}, nil
}

func (s CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s CronSchedule) String() string {
	return s.spec
}
