package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format accepted by range-scoped queries.
const DateLayout = "2006-01-02"

// Period is an inclusive instant range expanded from calendar dates.
type Period struct {
	FromDate string
	ToDate   string
	Start    time.Time
	End      time.Time
}

// NewPeriod expands from/to into [from 00:00:00, to 23:59:59] in loc.
// Missing or unparsable dates fall back to the current date.
func NewPeriod(from, to string, now time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	start := parseDay(from, today, loc)
	end := parseDay(to, today, loc)
	// Calendar arithmetic keeps the last second correct on 23h and 25h days.
	y, m, d := end.Date()
	return Period{
		FromDate: start.Format(DateLayout),
		ToDate:   end.Format(DateLayout),
		Start:    start,
		End:      time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Second),
	}
}

// Closed reports whether the period ended before now, so its results can no longer change
// through ingestion.
func (p Period) Closed(now time.Time) bool {
	return p.End.Before(now)
}

// Key identifies the period inside cache keys.
func (p Period) Key() string {
	return p.FromDate + ".." + p.ToDate
}

func parseDay(raw string, today time.Time, loc *time.Location) time.Time {
	if t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc); err == nil {
		return t
	}
	y, m, d := today.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Interval is a trend bucket width.
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// ParseInterval accepts hour, day, week or month; anything else is treated as day.
func ParseInterval(raw string) Interval {
	switch iv := Interval(strings.ToLower(strings.TrimSpace(raw))); iv {
	case IntervalHour, IntervalWeek, IntervalMonth:
		return iv
	default:
		return IntervalDay
	}
}

// Bucket renders the label of the bucket containing t, evaluated in loc.
// Weeks follow ISO 8601 numbering.
func (iv Interval) Bucket(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	switch iv {
	case IntervalHour:
		return t.Format("2006-01-02T15:00")
	case IntervalWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case IntervalMonth:
		return t.Format("2006-01")
	default:
		return t.Format(DateLayout)
	}
}
