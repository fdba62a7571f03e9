package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ruleParser accepts standard five-field specs plus @every descriptors.
var ruleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var weekdays = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// Rule is a parsed recurrence. Three forms are accepted:
//
//	daily@HH            every day at HH:00
//	weekly@weekday@HH   once a week on the named day at HH:00
//	every@DUR           on a fixed interval, e.g. every@6h
//
// All hours are UTC.
type Rule struct {
	raw      string
	schedule cron.Schedule
}

// ParseRule validates and compiles a recurrence rule.
func ParseRule(raw string) (*Rule, error) {
	spec, err := cronSpec(raw)
	if err != nil {
		return nil, err
	}
	schedule, err := ruleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence rule %q: %w", raw, err)
	}
	return &Rule{raw: raw, schedule: schedule}, nil
}

// cronSpec translates the rule syntax into a cron spec.
func cronSpec(raw string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(raw)), "@")
	switch {
	case len(parts) == 2 && parts[0] == "daily":
		hour, err := parseHour(parts[1])
		if err != nil {
			return "", fmt.Errorf("invalid recurrence rule %q: %w", raw, err)
		}
		return fmt.Sprintf("0 %d * * *", hour), nil

	case len(parts) == 3 && parts[0] == "weekly":
		day, ok := weekdays[parts[1]]
		if !ok {
			return "", fmt.Errorf("invalid recurrence rule %q: unknown weekday %q", raw, parts[1])
		}
		hour, err := parseHour(parts[2])
		if err != nil {
			return "", fmt.Errorf("invalid recurrence rule %q: %w", raw, err)
		}
		return fmt.Sprintf("0 %d * * %d", hour, day), nil

	case len(parts) == 2 && parts[0] == "every":
		if _, err := time.ParseDuration(parts[1]); err != nil {
			return "", fmt.Errorf("invalid recurrence rule %q: %w", raw, err)
		}
		return "@every " + parts[1], nil
	}
	return "", fmt.Errorf("invalid recurrence rule %q: expected daily@HH, weekly@weekday@HH or every@duration", raw)
}

func parseHour(s string) (int, error) {
	hour, err := strconv.Atoi(s)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour must be 0-23, got %q", s)
	}
	return hour, nil
}

// Next returns the first occurrence strictly after the given time.
func (r *Rule) Next(after time.Time) time.Time {
	return r.schedule.Next(after.UTC())
}

// Schedule exposes the compiled cron schedule for registration.
func (r *Rule) Schedule() cron.Schedule { return r.schedule }

// String returns the rule as written.
func (r *Rule) String() string { return r.raw }
