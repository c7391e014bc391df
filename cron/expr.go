// Package cron parses standard five-field cron expressions and runs a
// minute-tick scheduler over named tasks.
package cron

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	oasis "github.com/nevindra/clawgate"
)

// CronExpression holds five sorted, deduplicated field sets: minute, hour,
// day-of-month, month, weekday (Sunday=0).
type CronExpression struct {
	Minute   []int
	Hour     []int
	Day      []int
	Month    []int
	Weekday  []int
	Original string
}

type fieldBounds struct {
	min, max int
	names    map[string]int
}

var (
	minuteBounds  = fieldBounds{min: 0, max: 59}
	hourBounds    = fieldBounds{min: 0, max: 23}
	dayBounds     = fieldBounds{min: 1, max: 31}
	monthBounds   = fieldBounds{min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	weekdayBounds = fieldBounds{min: 0, max: 6, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

// Parse accepts a string of exactly five whitespace-separated fields
// (minute hour day month weekday) and returns a CronExpression, or an
// InvalidArgument error describing the first malformed field.
func Parse(expr string) (*CronExpression, *oasis.Error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, oasis.NewInvalidArgument("cron expression must have exactly five fields", expr)
	}

	minute, err := parseField(fields[0], minuteBounds)
	if err != nil {
		return nil, oasis.NewInvalidArgument("invalid minute field", err.Error())
	}
	hour, err := parseField(fields[1], hourBounds)
	if err != nil {
		return nil, oasis.NewInvalidArgument("invalid hour field", err.Error())
	}
	day, err := parseField(fields[2], dayBounds)
	if err != nil {
		return nil, oasis.NewInvalidArgument("invalid day-of-month field", err.Error())
	}
	month, err := parseField(fields[3], monthBounds)
	if err != nil {
		return nil, oasis.NewInvalidArgument("invalid month field", err.Error())
	}
	weekday, err := parseField(fields[4], weekdayBounds)
	if err != nil {
		return nil, oasis.NewInvalidArgument("invalid weekday field", err.Error())
	}

	return &CronExpression{
		Minute: minute, Hour: hour, Day: day, Month: month, Weekday: weekday,
		Original: expr,
	}, nil
}

func parseField(field string, bounds fieldBounds) ([]int, error) {
	set := make(map[int]struct{})
	for _, element := range strings.Split(field, ",") {
		if err := parseElement(element, bounds, set); err != nil {
			return nil, err
		}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func parseElement(element string, bounds fieldBounds, set map[int]struct{}) error {
	step := 1
	rangePart := element

	if idx := strings.Index(element, "/"); idx >= 0 {
		rangePart = element[:idx]
		s, err := strconv.Atoi(element[idx+1:])
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step in %q", element)
		}
		step = s
	}

	var lo, hi int
	switch {
	case rangePart == "*":
		lo, hi = bounds.min, bounds.max
	case strings.Contains(rangePart, "-"):
		parts := strings.SplitN(rangePart, "-", 2)
		a, err := resolveValue(parts[0], bounds)
		if err != nil {
			return err
		}
		b, err := resolveValue(parts[1], bounds)
		if err != nil {
			return err
		}
		if a > b {
			return fmt.Errorf("range start %d exceeds end %d", a, b)
		}
		lo, hi = a, b
	default:
		v, err := resolveValue(rangePart, bounds)
		if err != nil {
			return err
		}
		if step != 1 {
			lo, hi = v, bounds.max
		} else {
			set[v] = struct{}{}
			return nil
		}
	}

	for v := lo; v <= hi; v += step {
		set[v] = struct{}{}
	}
	return nil
}

func resolveValue(token string, bounds fieldBounds) (int, error) {
	if bounds.names != nil {
		if v, ok := bounds.names[strings.ToLower(token)]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", token)
	}
	if v < bounds.min || v > bounds.max {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", v, bounds.min, bounds.max)
	}
	return v, nil
}

func contains(set []int, v int) bool {
	idx := sort.SearchInts(set, v)
	return idx < len(set) && set[idx] == v
}

// Matches truncates ts to the UTC minute and checks set membership on
// minute, hour, day-of-month, month, and weekday.
func Matches(expr *CronExpression, ts time.Time) bool {
	ts = ts.UTC()
	return contains(expr.Minute, ts.Minute()) &&
		contains(expr.Hour, ts.Hour()) &&
		contains(expr.Day, ts.Day()) &&
		contains(expr.Month, int(ts.Month())) &&
		contains(expr.Weekday, int(ts.Weekday()))
}

// horizonYears bounds the linear minute search in NextOccurrence.
const horizonYears = 4

// NextOccurrence truncates from to the minute, advances by one minute, and
// performs a linear minute-by-minute search up to a four-year horizon. On
// exhaustion it returns the last candidate checked with ok=false, which
// callers should treat as "never".
func NextOccurrence(expr *CronExpression, from time.Time) (next time.Time, ok bool) {
	candidate := from.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := from.UTC().AddDate(horizonYears, 0, 0)

	for candidate.Before(limit) {
		if Matches(expr, candidate) {
			return candidate, true
		}
		candidate = candidate.Add(time.Minute)
	}
	return candidate, false
}
