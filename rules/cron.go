package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cronFieldCount = 5

// Special schedule names accepted in place of a 5-field expression.
const (
	cronDaily    = "daily"
	cronWeekly   = "weekly"
	cronMonthly  = "monthly"
	cronBirthday = "birthday"
)

func cronSpecials() []string {
	return []string{cronDaily, cronWeekly, cronMonthly, cronBirthday}
}

func isCronSpecial(expr string) bool {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case cronDaily, cronWeekly, cronMonthly, cronBirthday:
		return true
	}
	return false
}

// CronSchedule is a parsed minute-resolution schedule. Each field holds the
// set of accepted values; a nil set means the field is a wildcard.
type CronSchedule struct {
	minute  map[int]bool
	hour    map[int]bool
	day     map[int]bool
	month   map[int]bool
	weekday map[int]bool

	// birthday schedules validate but never self-match; the firing date
	// depends on member data the schedule does not carry.
	never bool
}

// ParseCron parses a 5-field cron expression (minute hour day month weekday)
// or one of the special names daily, weekly, monthly, birthday. Fields accept
// "*", "*/step", single values, comma lists, and dash ranges.
func ParseCron(expr string) (*CronSchedule, error) {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case cronDaily:
		expr = "0 0 * * *"
	case cronWeekly:
		expr = "0 0 * * 0"
	case cronMonthly:
		expr = "0 0 1 * *"
	case cronBirthday:
		return &CronSchedule{never: true}, nil
	}

	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return nil, fmt.Errorf("cron expression %q: want %d fields, got %d", expr, cronFieldCount, len(fields))
	}

	bounds := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day", 1, 31},
		{"month", 1, 12},
		{"weekday", 0, 6},
	}

	sets := make([]map[int]bool, cronFieldCount)
	for i, field := range fields {
		set, err := parseCronField(field, bounds[i].min, bounds[i].max)
		if err != nil {
			return nil, fmt.Errorf("cron %s field %q: %w", bounds[i].name, field, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		minute:  sets[0],
		hour:    sets[1],
		day:     sets[2],
		month:   sets[3],
		weekday: sets[4],
	}, nil
}

func parseCronField(field string, min, max int) (map[int]bool, error) {
	if field == "*" {
		return nil, nil
	}

	set := make(map[int]bool)
	for _, term := range strings.Split(field, ",") {
		switch {
		case strings.HasPrefix(term, "*/"):
			step, err := strconv.Atoi(term[2:])
			if err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step %q", term)
			}
			for v := min; v <= max; v += step {
				set[v] = true
			}

		case strings.Contains(term, "-"):
			parts := strings.SplitN(term, "-", 2)
			lo, err1 := strconv.Atoi(parts[0])
			hi, err2 := strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil || lo > hi || lo < min || hi > max {
				return nil, fmt.Errorf("invalid range %q", term)
			}
			for v := lo; v <= hi; v++ {
				set[v] = true
			}

		default:
			v, err := strconv.Atoi(term)
			if err != nil || v < min || v > max {
				return nil, fmt.Errorf("invalid value %q", term)
			}
			set[v] = true
		}
	}
	return set, nil
}

// Matches reports whether the schedule is due at t, truncated to the minute.
// Day-of-month and day-of-week are both restricted when both are; the cron
// either-matches convention is not used here, matching how schedules were
// interpreted before.
func (s *CronSchedule) Matches(t time.Time) bool {
	if s.never {
		return false
	}
	if s.minute != nil && !s.minute[t.Minute()] {
		return false
	}
	if s.hour != nil && !s.hour[t.Hour()] {
		return false
	}
	if s.day != nil && !s.day[t.Day()] {
		return false
	}
	if s.month != nil && !s.month[int(t.Month())] {
		return false
	}
	if s.weekday != nil && !s.weekday[int(t.Weekday())] {
		return false
	}
	return true
}
