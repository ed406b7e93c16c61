package query

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is the bucket width of a stat query.
type Resolution string

const (
	Hour  Resolution = "hour"
	Day   Resolution = "day"
	Week  Resolution = "week"
	Month Resolution = "month"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

// Valid reports whether r is one of the supported bucket widths.
func (r Resolution) Valid() bool {
	switch r {
	case Hour, Day, Week, Month:
		return true
	}
	return false
}

func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case Hour, Day, Week, Month:
		return r, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unsupported resolution %q (valid: hour, day, week, month)", s)
	}
}

// SuggestResolution picks a bucket width that keeps the number of buckets
// small for the given window.
func SuggestResolution(from, to time.Time) Resolution {
	d := to.Sub(from)
	switch {
	case d > month:
		return Month
	case d > week:
		return Week
	case d > day:
		return Day
	default:
		return Hour
	}
}

// Truncate returns the start of the bucket containing t, computed in loc the
// way PostgreSQL date_trunc does for the session time zone.
func (r Resolution) Truncate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	y, m, d := t.Date()
	switch r {
	case Hour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Next returns the start of the bucket following the one starting at t.
func (r Resolution) Next(t time.Time) time.Time {
	switch r {
	case Hour:
		return t.Add(time.Hour)
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Format renders a bucket key. Day and coarser buckets render as a date.
func (r Resolution) Format(t time.Time) string {
	if r == Hour {
		return t.Format(time.RFC3339)
	}
	return t.Format("2006-01-02")
}
