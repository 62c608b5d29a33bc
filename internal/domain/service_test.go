package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/persistence/memory"
)

var day = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *domain.Service
	cats  map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	cats := map[string]int64{}
	for _, c := range []struct {
		name  string
		score int
	}{
		{domain.UncategorizedName, 0},
		{"work", 2},
		{"work/coding", 2},
		{"communication", 0},
		{"entertainment/video", -1},
		{"social", -2},
	} {
		id, err := store.AddCategory(ctx, c.name, "", c.score)
		require.NoError(t, err)
		cats[c.name] = id
	}
	svc := domain.NewService(store, domain.WithClock(func() time.Time { return day.Add(30 * 24 * time.Hour) }))
	return &fixture{store: store, svc: svc, cats: cats}
}

func str(v string) *string { return &v }

func (f *fixture) events(t *testing.T, events ...domain.Event) {
	t.Helper()
	_, err := f.svc.RecordEvents(context.Background(), events)
	require.NoError(t, err)
}

func (f *fixture) upsert(t *testing.T, field, pattern, category string) domain.RuleResult {
	t.Helper()
	res, err := f.svc.UpsertRule(context.Background(), domain.UpsertRuleInput{Field: field, Pattern: pattern, CategoryID: f.cats[category]})
	require.NoError(t, err)
	return res
}

func march1() domain.Period {
	return domain.NewPeriod("2026-03-01", "2026-03-01", day, time.UTC)
}

func TestSummaryAndProductivityWorkedExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t,
		domain.Event{Timestamp: day, App: str("vscode"), Duration: 3600},
		domain.Event{Timestamp: day.Add(time.Hour), App: str("youtube.com"), Duration: 1800},
	)
	f.upsert(t, "app", "vscode", "work/coding")
	f.upsert(t, "app", "youtube.com", "entertainment/video")

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Equal(t, int64(5400), summary.TotalActiveSeconds)
	require.Equal(t, "1h 30m", summary.TotalActive)
	require.Len(t, summary.Groups, 2)
	require.Equal(t, "work/coding", summary.Groups[0].Name)
	require.Equal(t, int64(3600), summary.Groups[0].Seconds)
	require.Equal(t, 66.7, summary.Groups[0].Pct)
	require.Equal(t, "entertainment/video", summary.Groups[1].Name)
	require.Equal(t, 33.3, summary.Groups[1].Pct)

	prod, err := f.svc.Productivity(ctx, march1())
	require.NoError(t, err)
	require.Equal(t, 75, prod.Score)
	require.Equal(t, int64(3600), prod.Productive)
	require.Equal(t, int64(1800), prod.Distracting)
	require.Equal(t, prod.Total, prod.Productive+prod.Neutral+prod.Distracting)
}

func TestSummaryDefaultsUnmappedToUncategorized(t *testing.T) {
	f := newFixture(t)
	f.events(t,
		domain.Event{Timestamp: day, App: str("mystery"), Duration: 60},
		domain.Event{Timestamp: day.Add(time.Minute), Duration: 30},
	)

	byCategory, err := f.svc.Summary(context.Background(), march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Len(t, byCategory.Groups, 1)
	require.Equal(t, domain.UncategorizedName, byCategory.Groups[0].Name)
	require.Equal(t, 100.0, byCategory.Groups[0].Pct)

	byApp, err := f.svc.Summary(context.Background(), march1(), domain.GroupByApp)
	require.NoError(t, err)
	require.Equal(t, "mystery", byApp.Groups[0].Name)
	require.Equal(t, domain.UnknownLabel, byApp.Groups[1].Name)
}

func TestEmptyPeriodReportsZero(t *testing.T) {
	f := newFixture(t)
	summary, err := f.svc.Summary(context.Background(), march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Zero(t, summary.TotalActiveSeconds)
	require.Empty(t, summary.Groups)

	prod, err := f.svc.Productivity(context.Background(), march1())
	require.NoError(t, err)
	require.Equal(t, 50, prod.Score)
}

func TestAFKExcludedFromAggregatesButCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t,
		domain.Event{Timestamp: day, App: str("vscode"), Duration: 600},
		domain.Event{Timestamp: day.Add(20 * time.Minute), App: str("vscode"), Duration: 900, IsAFK: true},
	)
	res := f.upsert(t, "app", "vscode", "work/coding")
	require.Equal(t, int64(1), res.Affected, "AFK events are never recategorized")

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Equal(t, int64(600), summary.TotalActiveSeconds)

	trends, err := f.svc.Trends(ctx, march1(), domain.IntervalDay)
	require.NoError(t, err)
	require.Len(t, trends, 1)
	require.Equal(t, int64(600), trends[0].TotalSeconds)

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.True(t, current.IsAFK)
	require.Equal(t, 900.0, current.DurationSeconds)
	require.Equal(t, domain.UncategorizedName, current.Category)
}

func TestCurrentEmptyStore(t *testing.T) {
	f := newFixture(t)
	current, err := f.svc.Current(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestTitleRuleMatchesSubstring(t *testing.T) {
	f := newFixture(t)
	f.events(t,
		domain.Event{Timestamp: day, App: str("Safari"), Title: str("Review Pull Request #42"), Duration: 120},
		domain.Event{Timestamp: day.Add(time.Hour), App: str("Safari"), Title: str("pull request list"), Duration: 60},
	)
	res := f.upsert(t, "title", "Pull Request", "work/coding")
	require.Equal(t, int64(1), res.Affected)
}

func TestUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t, domain.Event{Timestamp: day, App: str("Slack"), Duration: 300})

	first := f.upsert(t, "app", "Slack", "communication")
	require.True(t, first.Created)
	require.Equal(t, int64(1), first.Affected)

	second := f.upsert(t, "app", "Slack", "communication")
	require.False(t, second.Created)
	require.Equal(t, first.RuleID, second.RuleID)
	require.Zero(t, second.Affected)

	rules, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, domain.UserRulePriority, rules[0].Priority)
	require.Equal(t, "communication", rules[0].CategoryName)

	retarget := f.upsert(t, "app", "Slack", "social")
	require.Equal(t, first.RuleID, retarget.RuleID)
	require.Equal(t, int64(1), retarget.Affected)
}

func TestUpsertValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpsertRule(ctx, domain.UpsertRuleInput{Field: "window", Pattern: "x", CategoryID: f.cats["work"]})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpsertRule(ctx, domain.UpsertRuleInput{Field: "app", Pattern: "  ", CategoryID: f.cats["work"]})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpsertRule(ctx, domain.UpsertRuleInput{Field: "app", Pattern: "vim"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpsertRule(ctx, domain.UpsertRuleInput{Field: "app", Pattern: "vim", CategoryID: 9999})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "category_id", verr.Field)

	rules, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules, "rejected mutations leave no rule behind")

	_, err = f.svc.UpsertRule(ctx, domain.UpsertRuleInput{Pattern: "vim", CategoryID: f.cats["work"]})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "field", verr.Field)
	require.ErrorIs(t, err, domain.ErrValidation)

	rules, err = f.svc.ListRules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestDeleteFallsBackToBuiltin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.store.SyncBuiltinRules(ctx, []domain.CategoryRule{
		{CategoryID: f.cats["work/coding"], Field: domain.FieldApp, Pattern: "Code", Priority: 10},
	})
	require.NoError(t, err)
	f.events(t, domain.Event{Timestamp: day, App: str("Code"), Duration: 600})

	_, err = f.svc.ClassifyPending(ctx)
	require.NoError(t, err)
	res := f.upsert(t, "app", "Code", "social")
	require.Equal(t, int64(1), res.Affected)

	n, err := f.svc.DeleteRule(ctx, res.RuleID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Equal(t, "work/coding", summary.Groups[0].Name)
}

func TestDeleteWithoutBuiltinFallsBackToUncategorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t, domain.Event{Timestamp: day, App: str("Discord"), Duration: 600})
	res := f.upsert(t, "app", "Discord", "social")

	n, err := f.svc.DeleteRule(ctx, res.RuleID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Equal(t, domain.UncategorizedName, summary.Groups[0].Name)

	rules, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules)

	changes := f.store.Changes()
	require.Len(t, changes, 2)
	require.Equal(t, domain.RuleActionDeleted, changes[1].Action)
	require.Equal(t, f.cats[domain.UncategorizedName], *changes[1].CategoryID)
}

func TestBuiltinRulesAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.store.SyncBuiltinRules(ctx, []domain.CategoryRule{
		{CategoryID: f.cats["work/coding"], Field: domain.FieldApp, Pattern: "Xcode", Priority: 10},
	})
	require.NoError(t, err)
	rules, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	builtin := rules[0]

	_, err = f.svc.UpdateRuleCategory(ctx, builtin.ID, f.cats["social"])
	require.ErrorIs(t, err, domain.ErrBuiltinRule)
	_, err = f.svc.DeleteRule(ctx, builtin.ID)
	require.ErrorIs(t, err, domain.ErrBuiltinRule)

	_, err = f.svc.UpdateRuleCategory(ctx, 4242, f.cats["social"])
	require.ErrorIs(t, err, domain.ErrRuleNotFound)
	_, err = f.svc.DeleteRule(ctx, 4242)
	require.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestUpdateRuleCategoryRecategorizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t, domain.Event{Timestamp: day, URLDomain: str("news.ycombinator.com"), Duration: 400})
	res := f.upsert(t, "url_domain", "news.ycombinator.com", "social")

	n, err := f.svc.UpdateRuleCategory(ctx, res.RuleID, f.cats["work"])
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = f.svc.UpdateRuleCategory(ctx, res.RuleID, 9999)
	require.ErrorIs(t, err, domain.ErrValidation)

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupBySite)
	require.NoError(t, err)
	require.Equal(t, "news.ycombinator.com", summary.Groups[0].Name)
}

func TestClassifyPendingHonoursPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.store.SyncBuiltinRules(ctx, []domain.CategoryRule{
		{CategoryID: f.cats["communication"], Field: domain.FieldApp, Pattern: "Chrome", Priority: 5},
		{CategoryID: f.cats["entertainment/video"], Field: domain.FieldURLDomain, Pattern: "youtube.com", Priority: 10},
	})
	require.NoError(t, err)
	f.events(t,
		domain.Event{Timestamp: day, App: str("Chrome"), URL: str("https://www.youtube.com/watch?v=1"), Duration: 100},
		domain.Event{Timestamp: day.Add(time.Minute), App: str("Chrome"), URL: str("https://mail.example.com"), Duration: 100},
		domain.Event{Timestamp: day.Add(2 * time.Minute), App: str("Chrome"), Duration: 100, IsAFK: true},
	)

	n, err := f.svc.ClassifyPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = f.svc.ClassifyPending(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	names := []string{summary.Groups[0].Name, summary.Groups[1].Name}
	require.ElementsMatch(t, []string{"communication", "entertainment/video"}, names)

	res, err := f.svc.Resolve(ctx, str("Chrome"), nil, str("youtube.com"))
	require.NoError(t, err)
	require.Equal(t, "entertainment/video", res.Category)

	res, err = f.svc.Resolve(ctx, str("Terminal"), nil, nil)
	require.NoError(t, err)
	require.Nil(t, res.RuleID)
	require.Equal(t, domain.UncategorizedName, res.Category)
	require.Equal(t, f.cats[domain.UncategorizedName], *res.CategoryID)
}

func TestAppsBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t,
		domain.Event{Timestamp: day, App: str("Chrome"), Title: str("Docs"), URL: str("https://docs.go.dev"), Duration: 600},
		domain.Event{Timestamp: day.Add(time.Hour), App: str("Chrome"), URL: str("https://reddit.com"), Title: str("feed"), Duration: 300},
		domain.Event{Timestamp: day.Add(2 * time.Hour), App: str("Terminal"), Duration: 100},
	)
	f.upsert(t, "url_domain", "docs.go.dev", "work")
	f.upsert(t, "url_domain", "reddit.com", "social")

	apps, err := f.svc.Apps(ctx, march1(), domain.GroupByApp, 0)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	require.Equal(t, "Chrome", apps[0].App)
	require.Equal(t, "work", apps[0].Category)
	require.Equal(t, int64(2), apps[0].Events)
	require.Equal(t, int64(900), apps[0].Seconds)
	require.Equal(t, 90.0, apps[0].Pct)

	sites, err := f.svc.Apps(ctx, march1(), domain.GroupBySite, 2)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "docs.go.dev", sites[0].App)
	require.Equal(t, "reddit.com", sites[1].App)
	require.Equal(t, "social", sites[1].Category)

	details, err := f.svc.AppDetails(ctx, march1(), "reddit.com")
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "feed", *details[0].Title)
}

func TestTimelinePaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.events(t, domain.Event{Timestamp: day.Add(time.Duration(i) * time.Minute), App: str("vim"), Duration: 60})
	}
	f.events(t, domain.Event{Timestamp: day.Add(10 * time.Minute), App: str("vim"), Duration: 60, IsAFK: true})

	page, next, err := f.svc.Timeline(ctx, march1(), nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.NotNil(t, next)
	require.True(t, page[0].Timestamp.Before(page[1].Timestamp))

	rest, next, err := f.svc.Timeline(ctx, march1(), next, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Nil(t, next)
	require.Equal(t, day.Add(4*time.Minute), rest[1].Timestamp)
}

func TestTrendsBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t,
		domain.Event{Timestamp: day, App: str("vscode"), Duration: 1800},
		domain.Event{Timestamp: day.Add(30 * time.Minute), App: str("Slack"), Duration: 1800},
		domain.Event{Timestamp: day.Add(2 * time.Hour), App: str("vscode"), Duration: 3600},
	)
	f.upsert(t, "app", "vscode", "work/coding")
	f.upsert(t, "app", "Slack", "communication")

	hourly, err := f.svc.Trends(ctx, march1(), domain.IntervalHour)
	require.NoError(t, err)
	require.Len(t, hourly, 2)
	require.Equal(t, "2026-03-01T09:00", hourly[0].Bucket)
	require.Equal(t, int64(3600), hourly[0].TotalSeconds)
	require.Equal(t, 1.0, hourly[0].TotalHours)
	require.Equal(t, 75, hourly[0].Productivity)
	require.Equal(t, map[string]int64{"work/coding": 1800, "communication": 1800}, hourly[0].Categories)
	require.Equal(t, "2026-03-01T11:00", hourly[1].Bucket)
	require.Equal(t, 100, hourly[1].Productivity)

	weekly, err := f.svc.Trends(ctx, domain.NewPeriod("2026-02-23", "2026-03-08", day, time.UTC), domain.IntervalWeek)
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	require.Equal(t, "2026-W09", weekly[0].Bucket)
	require.Equal(t, int64(7200), weekly[0].TotalSeconds)
}

func TestRecordEventsDerivesDomainAndClearsCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.cats["work"]
	_, err := f.svc.RecordEvents(ctx, []domain.Event{{
		Timestamp:  day,
		App:        str("Firefox"),
		URL:        str("https://www.example.org/path"),
		Duration:   42,
		CategoryID: &cat,
	}})
	require.NoError(t, err)

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.UncategorizedName, current.Category)

	sites, err := f.svc.Summary(ctx, march1(), domain.GroupBySite)
	require.NoError(t, err)
	require.Equal(t, "example.org", sites.Groups[0].Name)

	_, err = f.svc.RecordEvents(ctx, []domain.Event{{Timestamp: day, Duration: -1}})
	require.ErrorIs(t, err, domain.ErrValidation)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) ListRules(context.Context) ([]domain.RuleView, error) {
	return nil, errors.New("connection reset")
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	svc := domain.NewService(failingStore{memory.NewStore()})
	_, err := svc.ListRules(context.Background())
	require.ErrorIs(t, err, domain.ErrStorage)
	var serr *domain.StorageError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "list rules", serr.Op)
}
