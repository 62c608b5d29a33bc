package domain

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Bhavikpatel576/timely/internal/observability"
)

const (
	// DefaultTimelineLimit applies when the caller does not pass a limit.
	DefaultTimelineLimit = 200
	// MaxTimelineLimit caps a single timeline page.
	MaxTimelineLimit = 5000
	// DefaultAppLimit applies to app breakdowns without a limit.
	DefaultAppLimit = 20
	// MaxAppLimit caps app breakdowns.
	MaxAppLimit = 500
	// AppDetailLimit caps the sessions returned for one app.
	AppDetailLimit = 200
)

// GroupBy selects the summary grouping key.
type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByApp      GroupBy = "app"
	// GroupBySite groups by url_domain, falling back to the app name.
	GroupBySite GroupBy = "site"
)

// ParseGroupBy defaults anything unrecognised to category.
func ParseGroupBy(raw string) GroupBy {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(raw))); g {
	case GroupByApp, GroupBySite:
		return g
	default:
		return GroupByCategory
	}
}

func (g GroupBy) label(row ActivityTotal) string {
	switch g {
	case GroupByApp:
		return orUnknown(row.App)
	case GroupBySite:
		if row.URLDomain != "" {
			return row.URLDomain
		}
		return orUnknown(row.App)
	default:
		if row.Category == "" {
			return UncategorizedName
		}
		return row.Category
	}
}

func orUnknown(v string) string {
	if v == "" {
		return UnknownLabel
	}
	return v
}

// SummaryGroup is one row of a summary.
type SummaryGroup struct {
	Name    string  `json:"name"`
	Seconds int64   `json:"seconds"`
	Time    string  `json:"time"`
	Pct     float64 `json:"pct"`
	Color   string  `json:"color,omitempty"`
}

// Summary is active time over a period grouped by category, app or site.
type Summary struct {
	PeriodFrom         string         `json:"period_from"`
	PeriodTo           string         `json:"period_to"`
	TotalActive        string         `json:"total_active"`
	TotalActiveSeconds int64          `json:"total_active_seconds"`
	Groups             []SummaryGroup `json:"groups"`
}

// AppUsage is one row of an app breakdown.
type AppUsage struct {
	App      string  `json:"app"`
	Category string  `json:"category"`
	Seconds  int64   `json:"seconds"`
	Time     string  `json:"time"`
	Pct      float64 `json:"pct"`
	Events   int64   `json:"events"`
}

// Productivity splits active time by category weight.
type Productivity struct {
	Score       int   `json:"score"`
	Productive  int64 `json:"productive"`
	Neutral     int64 `json:"neutral"`
	Distracting int64 `json:"distracting"`
	Total       int64 `json:"total"`
}

// TrendBucket is active time inside one hour, day, ISO week or month.
type TrendBucket struct {
	Bucket       string           `json:"bucket"`
	TotalSeconds int64            `json:"total_seconds"`
	TotalHours   float64          `json:"total_hours"`
	Productivity int              `json:"productivity"`
	Categories   map[string]int64 `json:"categories"`
}

// CurrentActivity is the most recent event, AFK or not.
type CurrentActivity struct {
	App             *string   `json:"app"`
	Title           *string   `json:"title"`
	URL             *string   `json:"url"`
	Category        string    `json:"category"`
	DurationSeconds float64   `json:"duration_seconds"`
	IsAFK           bool      `json:"is_afk"`
	Since           time.Time `json:"since"`
}

// CategoryView is a catalog entry with its display color.
type CategoryView struct {
	Category
	Color string
}

// ListCategories returns the catalog ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]CategoryView, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	out := make([]CategoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryView{Category: c, Color: s.color(c.Name)})
	}
	return out, nil
}

// Summary groups active seconds in the period.
func (s *Service) Summary(ctx context.Context, p Period, groupBy GroupBy) (Summary, error) {
	defer observability.ObserveQuery("summary", time.Now())
	return cached(ctx, s, "summary:"+string(groupBy)+":"+p.Key(), p, func() (Summary, error) {
		rows, err := s.store.ActivityTotals(ctx, p)
		if err != nil {
			return Summary{}, storageErr("summary", err)
		}

		order, secs, total := accumulate(rows, groupBy.label)
		groups := make([]SummaryGroup, 0, len(order))
		for _, name := range order {
			if secs[name] <= 0 {
				continue
			}
			g := SummaryGroup{
				Name:    name,
				Seconds: int64(math.Round(secs[name])),
				Time:    FormatDuration(secs[name]),
				Pct:     Percent(secs[name], total),
			}
			if groupBy == GroupByCategory {
				g.Color = s.color(name)
			}
			groups = append(groups, g)
		}
		return Summary{
			PeriodFrom:         p.FromDate,
			PeriodTo:           p.ToDate,
			TotalActive:        FormatDuration(total),
			TotalActiveSeconds: int64(math.Round(total)),
			Groups:             groups,
		}, nil
	})
}

// Apps returns the per-app (or per-site) breakdown, each annotated with the category
// holding most of its time.
func (s *Service) Apps(ctx context.Context, p Period, by GroupBy, limit int) ([]AppUsage, error) {
	defer observability.ObserveQuery("apps", time.Now())
	if by != GroupBySite {
		by = GroupByApp
	}
	limit = clampLimit(limit, DefaultAppLimit, MaxAppLimit)
	key := "apps:" + string(by) + ":" + p.Key() + ":" + strconv.Itoa(limit)
	return cached(ctx, s, key, p, func() ([]AppUsage, error) {
		rows, err := s.store.ActivityTotals(ctx, p)
		if err != nil {
			return nil, storageErr("apps", err)
		}

		order, secs, total := accumulate(rows, by.label)
		events := make(map[string]int64, len(order))
		perCategory := make(map[string]map[string]float64, len(order))
		for _, row := range rows {
			label := by.label(row)
			events[label] += row.Events
			if perCategory[label] == nil {
				perCategory[label] = make(map[string]float64)
			}
			perCategory[label][GroupByCategory.label(row)] += row.Seconds
		}

		if len(order) > limit {
			order = order[:limit]
		}
		out := make([]AppUsage, 0, len(order))
		for _, label := range order {
			cat := dominant(perCategory[label])
			out = append(out, AppUsage{
				App:      label,
				Category: cat,
				Seconds:  int64(math.Round(secs[label])),
				Time:     FormatDuration(secs[label]),
				Pct:      Percent(secs[label], total),
				Events:   events[label],
			})
		}
		return out, nil
	})
}

// Timeline returns the events of the period in chronological order, resuming after cursor.
// The returned cursor is nil once the last page has been served.
func (s *Service) Timeline(ctx context.Context, p Period, after *Cursor, limit int) ([]EventView, *Cursor, error) {
	defer observability.ObserveQuery("timeline", time.Now())
	limit = clampLimit(limit, DefaultTimelineLimit, MaxTimelineLimit)
	events, err := s.store.Timeline(ctx, p, after, limit)
	if err != nil {
		return nil, nil, storageErr("timeline", err)
	}
	var next *Cursor
	if len(events) == limit {
		last := events[len(events)-1]
		next = &Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
	return events, next, nil
}

// AppDetails lists the sessions of one app or domain in the period.
func (s *Service) AppDetails(ctx context.Context, p Period, name string) ([]EventView, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	events, err := s.store.AppEvents(ctx, p, name, AppDetailLimit)
	if err != nil {
		return nil, storageErr("app details", err)
	}
	return events, nil
}

// Productivity scores the period by duration-weighted category weight.
func (s *Service) Productivity(ctx context.Context, p Period) (Productivity, error) {
	defer observability.ObserveQuery("productivity", time.Now())
	return cached(ctx, s, "productivity:"+p.Key(), p, func() (Productivity, error) {
		rows, err := s.store.ActivityTotals(ctx, p)
		if err != nil {
			return Productivity{}, storageErr("productivity", err)
		}
		var productive, neutral, distracting, weighted float64
		for _, row := range rows {
			switch {
			case row.ProductivityScore > 0:
				productive += row.Seconds
			case row.ProductivityScore < 0:
				distracting += row.Seconds
			default:
				neutral += row.Seconds
			}
			weighted += row.Seconds * float64(row.ProductivityScore)
		}
		total := productive + neutral + distracting
		return Productivity{
			Score:       ProductivityScore(weighted, total),
			Productive:  int64(math.Round(productive)),
			Neutral:     int64(math.Round(neutral)),
			Distracting: int64(math.Round(distracting)),
			Total:       int64(math.Round(total)),
		}, nil
	})
}

// Trends buckets active time by interval in the service's zone.
func (s *Service) Trends(ctx context.Context, p Period, iv Interval) ([]TrendBucket, error) {
	defer observability.ObserveQuery("trends", time.Now())
	return cached(ctx, s, "trends:"+string(iv)+":"+p.Key(), p, func() ([]TrendBucket, error) {
		rows, err := s.store.BucketTotals(ctx, p, iv, s.loc)
		if err != nil {
			return nil, storageErr("trends", err)
		}

		type accum struct {
			total, weighted float64
			categories      map[string]float64
		}
		byBucket := make(map[string]*accum)
		for _, row := range rows {
			a := byBucket[row.Bucket]
			if a == nil {
				a = &accum{categories: make(map[string]float64)}
				byBucket[row.Bucket] = a
			}
			category := row.Category
			if category == "" {
				category = UncategorizedName
			}
			a.total += row.Seconds
			a.weighted += row.Seconds * float64(row.ProductivityScore)
			a.categories[category] += row.Seconds
		}

		buckets := make([]string, 0, len(byBucket))
		for b := range byBucket {
			buckets = append(buckets, b)
		}
		sort.Strings(buckets)

		out := make([]TrendBucket, 0, len(buckets))
		for _, b := range buckets {
			a := byBucket[b]
			cats := make(map[string]int64, len(a.categories))
			for name, sec := range a.categories {
				cats[name] = int64(math.Round(sec))
			}
			out = append(out, TrendBucket{
				Bucket:       b,
				TotalSeconds: int64(math.Round(a.total)),
				TotalHours:   round1(a.total / 3600),
				Productivity: ProductivityScore(a.weighted, a.total),
				Categories:   cats,
			})
		}
		return out, nil
	})
}

// Current reports the latest event regardless of AFK state, or nil when the store is empty.
func (s *Service) Current(ctx context.Context) (*CurrentActivity, error) {
	ev, err := s.store.LatestEvent(ctx)
	if err != nil {
		return nil, storageErr("current", err)
	}
	if ev == nil {
		return nil, nil
	}
	category := ev.Category
	if category == "" {
		category = UncategorizedName
	}
	return &CurrentActivity{
		App:             ev.App,
		Title:           ev.Title,
		URL:             ev.URL,
		Category:        category,
		DurationSeconds: ev.Duration,
		IsAFK:           ev.IsAFK,
		Since:           ev.Timestamp,
	}, nil
}

// accumulate sums seconds per label and returns labels by seconds desc, then name.
func accumulate(rows []ActivityTotal, label func(ActivityTotal) string) ([]string, map[string]float64, float64) {
	secs := make(map[string]float64)
	var total float64
	for _, row := range rows {
		secs[label(row)] += row.Seconds
		total += row.Seconds
	}
	order := make([]string, 0, len(secs))
	for name := range secs {
		order = append(order, name)
	}
	sort.Slice(order, func(i, j int) bool {
		if secs[order[i]] != secs[order[j]] {
			return secs[order[i]] > secs[order[j]]
		}
		return order[i] < order[j]
	})
	return order, secs, total
}

func dominant(m map[string]float64) string {
	best, bestSecs := UncategorizedName, -1.0
	for name, sec := range m {
		if sec > bestSecs || (sec == bestSecs && name < best) {
			best, bestSecs = name, sec
		}
	}
	return best
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// cached serves closed periods from the report cache. Open periods always hit the store.
func cached[T any](ctx context.Context, s *Service, key string, p Period, load func() (T, error)) (T, error) {
	if !p.Closed(s.now()) {
		return load()
	}
	var hit T
	slot, ok, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		s.logger.Warn("report cache read failed", "key", key, "error", err)
	}
	if _, isNoop := s.cache.(noCache); !isNoop {
		observability.RecordCacheLookup(ok)
	}
	if ok {
		return hit, nil
	}
	val, err := load()
	if err != nil {
		return val, err
	}
	if slot == "" {
		return val, nil
	}
	if err := s.cache.Set(ctx, slot, val); err != nil {
		s.logger.Warn("report cache write failed", "key", key, "error", err)
	}
	return val, nil
}
