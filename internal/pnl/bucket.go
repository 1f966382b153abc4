package pnl

import (
	"fmt"
	"strings"
	"time"
)

// Granularity selects the calendar bucket realized PnL is grouped into.
type Granularity int

const (
	Day Granularity = iota + 1
	Month
	Year
)

func (g Granularity) layout() string {
	switch g {
	case Day:
		return "2006-01-02"
	case Month:
		return "2006-01"
	case Year:
		return "2006"
	default:
		return ""
	}
}

func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
}

// Valid reports whether g is one of Day, Month or Year.
func (g Granularity) Valid() bool {
	return g >= Day && g <= Year
}

// ParseGranularity accepts "day", "month" or "year" (also "daily", "monthly", "yearly").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily", "d":
		return Day, nil
	case "month", "monthly", "m":
		return Month, nil
	case "year", "yearly", "y":
		return Year, nil
	default:
		return 0, fmt.Errorf("unknown granularity %q", s)
	}
}

// Bucket returns the bucket label of t, e.g. "2024-03-09" for Day.
// The label is computed in t's own location.
func (g Granularity) Bucket(t time.Time) string {
	return t.Format(g.layout())
}

// Parse returns the start of the bucket named by label, in UTC.
func (g Granularity) Parse(label string) (time.Time, error) {
	if !g.Valid() {
		return time.Time{}, fmt.Errorf("invalid granularity %d", int(g))
	}
	t, err := time.Parse(g.layout(), label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s bucket %q: %w", g, label, err)
	}
	return t, nil
}

// Coarser reports whether g groups time into larger buckets than other.
func (g Granularity) Coarser(other Granularity) bool {
	return g > other
}
