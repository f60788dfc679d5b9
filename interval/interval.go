// Package interval maps the named recurrence intervals accepted by
// ScheduleRecurringJob to cron schedules.
//
// Each name resolves to an "@every" descriptor parsed by robfig/cron, so the
// next occurrence is always a fixed delay after the reference time. Unknown
// names are rejected.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// ErrUnknownInterval is returned for a name that is not in the table.
var ErrUnknownInterval = errors.New("interval: unknown interval")

// Known interval names.
const (
	EveryMinute    = "every_minute"
	Every5Minutes  = "every_5_minutes"
	Every15Minutes = "every_15_minutes"
	Every30Minutes = "every_30_minutes"
	Hourly         = "hourly"
	Every6Hours    = "every_6_hours"
	Daily          = "daily"
	Weekly         = "weekly"
)

var descriptors = map[string]string{
	EveryMinute:    "@every 1m",
	Every5Minutes:  "@every 5m",
	Every15Minutes: "@every 15m",
	Every30Minutes: "@every 30m",
	Hourly:         "@every 1h",
	Every6Hours:    "@every 6h",
	Daily:          "@every 24h",
	Weekly:         "@every 168h",
}

var parser = cronlib.NewParser(cronlib.Descriptor)

// schedules is built once from descriptors at init.
var schedules = func() map[string]cronlib.Schedule {
	out := make(map[string]cronlib.Schedule, len(descriptors))
	for name, expr := range descriptors {
		s, err := parser.Parse(expr)
		if err != nil {
			panic(fmt.Sprintf("interval: bad descriptor %q for %q: %v", expr, name, err))
		}
		out[name] = s
	}
	return out
}()

// Parse returns the schedule for a named interval.
func Parse(name string) (cronlib.Schedule, error) {
	s, ok := schedules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterval, name)
	}
	return s, nil
}

// Next returns the next occurrence of name after from.
func Next(name string, from time.Time) (time.Time, error) {
	s, err := Parse(name)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}

// Delay returns the fixed delay between occurrences of name.
func Delay(name string) (time.Duration, error) {
	s, err := Parse(name)
	if err != nil {
		return 0, err
	}
	if cd, ok := s.(cronlib.ConstantDelaySchedule); ok {
		return cd.Delay, nil
	}
	// Every descriptor in the table is an @every schedule.
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return s.Next(ref).Sub(ref), nil
}

// Valid reports whether name is a known interval.
func Valid(name string) bool {
	_, ok := schedules[name]
	return ok
}

// Names returns the known interval names sorted by delay.
func Names() []string {
	names := make([]string, 0, len(descriptors))
	for n := range descriptors {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		di, _ := Delay(names[i])
		dj, _ := Delay(names[j])
		return di < dj
	})
	return names
}
