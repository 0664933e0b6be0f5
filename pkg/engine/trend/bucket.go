package trend

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the width of a time bucket.
type Granularity string

const (
	Auto  Granularity = "auto"
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity accepts auto, day, week and month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "", Auto:
		return Auto, nil
	case Day, Week, Month:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want auto, day, week or month)", s)
}

// Resolve picks a concrete granularity. Auto uses months for spans over a year,
// weeks for spans over 60 days, days otherwise.
func Resolve(g Granularity, first, last time.Time) Granularity {
	if g != Auto && g != "" {
		return g
	}
	days := int(last.Sub(first).Hours() / 24)
	switch {
	case days > 365:
		return Month
	case days > 60:
		return Week
	}
	return Day
}

// Bucket labels t. Labels sort lexically in time order.
func (g Granularity) Bucket(t time.Time) string {
	t = t.UTC()
	switch g {
	case Month:
		return t.Format("2006-01")
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return t.Format("2006-01-02")
}
