// Package cron evaluates 5-field cron expressions at the coarse granularity
// the sweeper needs: minute (with a tolerance window), hour, and day-of-week.
// Day-of-month and month are accepted syntactically but always treated as "*".
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedExpr = errors.New("malformed cron expression")
	// ErrUnsupportedHourSyntax is returned for list or step syntax in the
	// hour field. The sweeper only supports "*" or a single hour; anything
	// else fails closed rather than being silently misread.
	ErrUnsupportedHourSyntax = errors.New("unsupported syntax in hour field")
)

// Schedule is a parsed cron expression. Parse once, evaluate on every tick.
type Schedule struct {
	anyMinute bool
	minute    int

	anyHour bool
	hour    int

	anyDay bool
	days   map[int]bool // 0=Sunday .. 6=Saturday
}

// Parse parses a 5-field cron expression (minute, hour, day-of-month, month,
// day-of-week). Day-of-month and month must be present but are not evaluated.
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrMalformedExpr, len(fields), expr)
	}

	s := &Schedule{}

	switch m := fields[0]; m {
	case "*":
		s.anyMinute = true
	default:
		v, err := strconv.Atoi(m)
		if err != nil || v < 0 || v > 59 {
			return nil, fmt.Errorf("%w: bad minute field %q", ErrMalformedExpr, m)
		}
		s.minute = v
	}

	switch h := fields[1]; h {
	case "*":
		s.anyHour = true
	default:
		if strings.ContainsAny(h, ",/-") {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedHourSyntax, h)
		}
		v, err := strconv.Atoi(h)
		if err != nil || v < 0 || v > 23 {
			return nil, fmt.Errorf("%w: bad hour field %q", ErrMalformedExpr, h)
		}
		s.hour = v
	}

	switch d := fields[4]; d {
	case "*":
		s.anyDay = true
	default:
		s.days = make(map[int]bool)
		for _, part := range strings.Split(d, ",") {
			v, err := strconv.Atoi(part)
			if err != nil || v < 0 || v > 6 {
				return nil, fmt.Errorf("%w: bad day-of-week field %q", ErrMalformedExpr, d)
			}
			s.days[v] = true
		}
	}

	return s, nil
}

// Matches reports whether the schedule fires at nowUTC, evaluated in the
// civil calendar of loc with the given minute tolerance. The sweep runs
// periodically rather than every minute, so a concrete minute matches when
// its circular distance from the local minute is within toleranceMinutes.
// Deterministic and side-effect free.
func (s *Schedule) Matches(nowUTC time.Time, loc *time.Location, toleranceMinutes int) bool {
	local := nowUTC.In(loc)

	if !s.anyHour && local.Hour() != s.hour {
		return false
	}

	if !s.anyMinute {
		if minuteDistance(local.Minute(), s.minute) > toleranceMinutes {
			return false
		}
	}

	if !s.anyDay && !s.days[int(local.Weekday())] {
		return false
	}

	return true
}

// Fires parses expr, resolves tzName against the timezone database, and
// evaluates the schedule at nowUTC. A malformed expression or unknown
// timezone returns an error and never fires.
func Fires(expr string, nowUTC time.Time, tzName string, toleranceMinutes int) (bool, error) {
	s, err := Parse(expr)
	if err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", tzName, err)
	}
	return s.Matches(nowUTC, loc, toleranceMinutes), nil
}

// minuteDistance is the circular distance between two minutes on a 60-minute
// wheel, so target 2 is 4 minutes away from 58, not 56.
func minuteDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 30 {
		d = 60 - d
	}
	return d
}
