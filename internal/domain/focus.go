package domain

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/Bhavikpatel576/timely/internal/observability"
)

const (
	// deepWorkMaxGap is the longest idle gap tolerated inside a deep-work block.
	deepWorkMaxGap = 65 * time.Second
	// deepWorkMinSeconds is the shortest block that counts as deep work.
	deepWorkMinSeconds = 300
	// switchPenaltyCeiling is the switches-per-hour rate at which the switch penalty saturates.
	switchPenaltyCeiling = 30.0
	topDistractions      = 5
)

// DeepWorkBlock is a run of productive events in one category.
type DeepWorkBlock struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"duration_seconds"`
	DurationTime    string    `json:"duration_time"`
	Category        string    `json:"category"`
	Apps            []string  `json:"apps"`
}

// Distraction counts switches from productive work into an app.
type Distraction struct {
	App          string  `json:"app"`
	SwitchesTo   int     `json:"switches_to"`
	TotalSeconds float64 `json:"total_seconds"`
}

// FocusReport describes how fragmented the period's active time was.
type FocusReport struct {
	PeriodFrom          string          `json:"period_from"`
	PeriodTo            string          `json:"period_to"`
	TotalActiveSeconds  float64         `json:"total_active_seconds"`
	TotalActiveTime     string          `json:"total_active_time"`
	FocusScore          int             `json:"focus_score"`
	ContextSwitches     int             `json:"context_switches"`
	SwitchesPerHour     float64         `json:"switches_per_hour"`
	DeepWorkBlocks      []DeepWorkBlock `json:"deep_work_blocks"`
	LongestFocusMinutes float64         `json:"longest_focus_minutes"`
	TopDistractions     []Distraction   `json:"top_distractions"`
}

// Focus analyses context switching and deep work over the period's active events.
func (s *Service) Focus(ctx context.Context, p Period) (FocusReport, error) {
	defer observability.ObserveQuery("focus", time.Now())
	events, err := s.store.ActiveEvents(ctx, p)
	if err != nil {
		return FocusReport{}, storageErr("focus", err)
	}
	report := AnalyzeFocus(events)
	report.PeriodFrom, report.PeriodTo = p.FromDate, p.ToDate
	return report, nil
}

// AnalyzeFocus computes a focus report from chronologically ordered events.
// AFK events are ignored.
func AnalyzeFocus(all []EventView) FocusReport {
	events := make([]EventView, 0, len(all))
	var total float64
	for _, e := range all {
		if e.IsAFK {
			continue
		}
		if e.Category == "" {
			e.Category = UncategorizedName
		}
		events = append(events, e)
		total += e.Duration
	}

	report := FocusReport{
		TotalActiveSeconds: total,
		TotalActiveTime:    FormatDuration(total),
		DeepWorkBlocks:     []DeepWorkBlock{},
		TopDistractions:    []Distraction{},
	}
	if len(events) == 0 {
		return report
	}

	for i := 1; i < len(events); i++ {
		if events[i].Category != events[i-1].Category {
			report.ContextSwitches++
		}
	}
	if hours := total / 3600; hours > 0 {
		report.SwitchesPerHour = round1(float64(report.ContextSwitches) / hours)
	}

	report.DeepWorkBlocks = deepWorkBlocks(events)
	var deepSeconds, longest float64
	for _, b := range report.DeepWorkBlocks {
		deepSeconds += b.DurationSeconds
		longest = math.Max(longest, b.DurationSeconds)
	}
	report.LongestFocusMinutes = round1(longest / 60)
	report.TopDistractions = distractions(events)

	ratio := 0.0
	if total > 0 {
		ratio = deepSeconds / total
	}
	penalty := math.Min(report.SwitchesPerHour/switchPenaltyCeiling, 1)
	report.FocusScore = clampScore(math.Round((ratio*0.7 + (1-penalty)*0.3) * 100))
	return report
}

func deepWorkBlocks(events []EventView) []DeepWorkBlock {
	blocks := []DeepWorkBlock{}
	var (
		open     bool
		start    int
		duration float64
		apps     []string
	)
	flush := func(end EventView) {
		if open && duration >= deepWorkMinSeconds {
			blocks = append(blocks, DeepWorkBlock{
				Start:           events[start].Timestamp,
				End:             end.Timestamp,
				DurationSeconds: duration,
				DurationTime:    FormatDuration(duration),
				Category:        events[start].Category,
				Apps:            apps,
			})
		}
		open, duration, apps = false, 0, nil
	}
	begin := func(i int) {
		open, start, duration = true, i, events[i].Duration
		apps = []string{appName(events[i])}
	}

	for i, e := range events {
		productive := e.ProductivityScore > 0
		if !open {
			if productive {
				begin(i)
			}
			continue
		}
		prev := events[i-1]
		if productive && e.Category == events[start].Category && withinGap(prev, e) {
			duration += e.Duration
			if app := appName(e); !slices.Contains(apps, app) {
				apps = append(apps, app)
			}
			continue
		}
		flush(prev)
		if productive {
			begin(i)
		}
	}
	if open {
		flush(events[len(events)-1])
	}
	return blocks
}

func distractions(events []EventView) []Distraction {
	byApp := make(map[string]*Distraction)
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if prev.ProductivityScore > 0 && cur.ProductivityScore <= 0 {
			app := appName(cur)
			d := byApp[app]
			if d == nil {
				d = &Distraction{App: app}
				byApp[app] = d
			}
			d.SwitchesTo++
			d.TotalSeconds += cur.Duration
		}
	}
	out := make([]Distraction, 0, len(byApp))
	for _, d := range byApp {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SwitchesTo != out[j].SwitchesTo {
			return out[i].SwitchesTo > out[j].SwitchesTo
		}
		return out[i].App < out[j].App
	})
	if len(out) > topDistractions {
		out = out[:topDistractions]
	}
	return out
}

// withinGap compares the end of prev, truncated to whole seconds, with the start of cur.
func withinGap(prev, cur EventView) bool {
	end := prev.Timestamp.Add(time.Duration(int64(prev.Duration)) * time.Second)
	return cur.Timestamp.Sub(end) <= deepWorkMaxGap
}

func appName(e EventView) string {
	if e.App == nil || *e.App == "" {
		return UnknownLabel
	}
	return *e.App
}
