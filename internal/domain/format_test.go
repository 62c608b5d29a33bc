package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0:    "0m",
		29:   "0m",
		30:   "1m",
		3540: "59m",
		3599: "1h 0m",
		3600: "1h 0m",
		5400: "1h 30m",
		7199: "2h 0m",
		-5:   "0m",
	}
	for secs, want := range cases {
		require.Equal(t, want, FormatDuration(secs), "seconds=%v", secs)
	}
}

func TestProductivityScore(t *testing.T) {
	require.Equal(t, 50, ProductivityScore(0, 0))
	require.Equal(t, 75, ProductivityScore(5400, 5400))
	require.Equal(t, 100, ProductivityScore(2*100, 100))
	require.Equal(t, 0, ProductivityScore(-2*100, 100))
	// Weights outside [-2, 2] cannot escape the clamp.
	require.Equal(t, 100, ProductivityScore(10*100, 100))
}

func TestPercent(t *testing.T) {
	require.Equal(t, 66.7, Percent(3600, 5400))
	require.Equal(t, 33.3, Percent(1800, 5400))
	require.Zero(t, Percent(10, 0))
}

func TestNewPeriodExpandsCalendarDates(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	p := NewPeriod("2026-03-01", "2026-03-02", now, loc)
	require.Equal(t, "2026-03-01", p.FromDate)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), p.Start)
	require.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 0, loc), p.End)

	today := NewPeriod("", "not-a-date", now, loc)
	require.Equal(t, "2026-03-05", today.FromDate)
	require.Equal(t, "2026-03-05", today.ToDate)
	require.False(t, today.Closed(now))
	require.True(t, p.Closed(now))
}

func TestNewPeriodEndsOnLastSecondAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, 12, 1, 12, 0, 0, 0, time.UTC)

	// 25-hour day: clocks fall back at 02:00 EDT.
	fallBack := NewPeriod("2026-11-01", "2026-11-01", now, loc)
	require.Equal(t, time.Date(2026, 11, 1, 23, 59, 59, 0, loc), fallBack.End)
	_, offset := fallBack.End.Zone()
	require.Equal(t, -5*3600, offset)
	require.Equal(t, 25*time.Hour-time.Second, fallBack.End.Sub(fallBack.Start))

	// 23-hour day: clocks spring forward at 02:00 EST.
	springForward := NewPeriod("2026-03-08", "2026-03-08", now, loc)
	require.Equal(t, time.Date(2026, 3, 8, 23, 59, 59, 0, loc), springForward.End)
	require.Equal(t, "2026-03-08", springForward.End.Format(DateLayout))
	_, offset = springForward.End.Zone()
	require.Equal(t, -4*3600, offset)
	require.Equal(t, 23*time.Hour-time.Second, springForward.End.Sub(springForward.Start))
}

func TestIntervalBucket(t *testing.T) {
	ts := time.Date(2026, 3, 1, 14, 25, 0, 0, time.UTC)
	require.Equal(t, "2026-03-01T14:00", IntervalHour.Bucket(ts, time.UTC))
	require.Equal(t, "2026-03-01", IntervalDay.Bucket(ts, time.UTC))
	require.Equal(t, "2026-W09", IntervalWeek.Bucket(ts, time.UTC))
	require.Equal(t, "2026-03", IntervalMonth.Bucket(ts, time.UTC))

	// ISO weeks belong to the year that owns their Thursday.
	require.Equal(t, "2026-W53", IntervalWeek.Bucket(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC))
	require.Equal(t, IntervalDay, ParseInterval("fortnight"))
	require.Equal(t, IntervalWeek, ParseInterval(" Week "))
}

func TestFieldMatching(t *testing.T) {
	title := "Review Pull Request #42"
	app := "Code"
	require.True(t, FieldTitle.Matches(&title, "Pull Request"))
	require.False(t, FieldTitle.Matches(&title, "pull request"))
	require.True(t, FieldApp.Matches(&app, "Code"))
	require.False(t, FieldApp.Matches(&app, "Cod"))
	require.False(t, FieldURLDomain.Matches(nil, ""))

	_, err := ParseField("window")
	require.ErrorIs(t, err, ErrValidation)
	for _, f := range Fields {
		parsed, err := ParseField(f.String())
		require.NoError(t, err)
		require.Equal(t, f, parsed)
	}
}

func TestRuleAppliesSkipsAFK(t *testing.T) {
	app := "Slack"
	rule := CategoryRule{Field: FieldApp, Pattern: "Slack"}
	require.True(t, rule.Applies(Event{App: &app}))
	require.False(t, rule.Applies(Event{App: &app, IsAFK: true}))
}

func TestDomainOf(t *testing.T) {
	raw := "https://www.GitHub.com/org/repo?tab=1"
	require.Equal(t, "github.com", *DomainOf(&raw))
	empty := ""
	require.Nil(t, DomainOf(&empty))
	require.Nil(t, DomainOf(nil))
	bad := "not a url"
	require.Nil(t, DomainOf(&bad))
}
