package domain_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/persistence/memory"
)

// genCache is an in-process ReportCache with the same generation scheme as the Redis one.
type genCache struct {
	mu      sync.Mutex
	gen     int
	entries map[string][]byte
	bumps   int
}

func newGenCache() *genCache { return &genCache{entries: make(map[string][]byte)} }

func (c *genCache) Get(_ context.Context, key string, dst any) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := "g" + strconv.Itoa(c.gen) + ":" + key
	raw, ok := c.entries[slot]
	if !ok {
		return slot, false, nil
	}
	return slot, true, json.Unmarshal(raw, dst)
}

func (c *genCache) Set(_ context.Context, slot string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[slot] = raw
	return nil
}

func (c *genCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.bumps++
	return nil
}

// racingStore runs onRead once, after ActivityTotals has read its rows.
type racingStore struct {
	*memory.Store
	onRead func()
}

func (s *racingStore) ActivityTotals(ctx context.Context, p domain.Period) ([]domain.ActivityTotal, error) {
	rows, err := s.Store.ActivityTotals(ctx, p)
	if hook := s.onRead; hook != nil {
		s.onRead = nil
		hook()
	}
	return rows, err
}

func seedCategories(t *testing.T, store *memory.Store) map[string]int64 {
	t.Helper()
	cats := map[string]int64{}
	for _, name := range []string{domain.UncategorizedName, "work", "work/coding"} {
		id, err := store.AddCategory(context.Background(), name, "", 2)
		require.NoError(t, err)
		cats[name] = id
	}
	return cats
}

func TestLateEventInvalidatesClosedPeriod(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCategories(t, store)
	cache := newGenCache()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc := domain.NewService(store, domain.WithCache(cache), domain.WithClock(func() time.Time { return now }))

	_, err := svc.RecordEvents(ctx, []domain.Event{{Timestamp: day, App: str("vim"), Duration: 600}})
	require.NoError(t, err)
	before, err := svc.Summary(ctx, march1(), domain.GroupByApp)
	require.NoError(t, err)
	require.Equal(t, int64(600), before.TotalActiveSeconds)

	// A capture session that spanned midnight is only flushed the next day.
	_, err = svc.RecordEvents(ctx, []domain.Event{{Timestamp: day.Add(14 * time.Hour), App: str("vim"), Duration: 900}})
	require.NoError(t, err)
	after, err := svc.Summary(ctx, march1(), domain.GroupByApp)
	require.NoError(t, err)
	require.Equal(t, int64(1500), after.TotalActiveSeconds)
}

func TestTodaysEventsKeepCacheGeneration(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedCategories(t, store)
	cache := newGenCache()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc := domain.NewService(store, domain.WithCache(cache), domain.WithClock(func() time.Time { return now }))

	_, err := svc.RecordEvents(ctx, []domain.Event{{Timestamp: now.Add(-time.Hour), App: str("vim"), Duration: 60}})
	require.NoError(t, err)
	require.Zero(t, cache.bumps)

	_, err = svc.RecordEvents(ctx, []domain.Event{{Timestamp: now.Add(-11 * time.Hour), App: str("vim"), Duration: 60}})
	require.NoError(t, err)
	require.Equal(t, 1, cache.bumps)
}

func TestRuleChangeDuringLoadIsNotCachedAsFresh(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memory.NewStore()}
	cats := seedCategories(t, store.Store)
	cache := newGenCache()
	svc := domain.NewService(store, domain.WithCache(cache), domain.WithClock(func() time.Time { return day.Add(30 * 24 * time.Hour) }))

	_, err := svc.RecordEvents(ctx, []domain.Event{{Timestamp: day, App: str("vscode"), Duration: 3600}})
	require.NoError(t, err)

	store.onRead = func() {
		_, err := svc.UpsertRule(ctx, domain.UpsertRuleInput{Field: "app", Pattern: "vscode", CategoryID: cats["work/coding"]})
		require.NoError(t, err)
	}
	stale, err := svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Equal(t, domain.UncategorizedName, stale.Groups[0].Name)

	fresh, err := svc.Summary(ctx, march1(), domain.GroupByCategory)
	require.NoError(t, err)
	require.Len(t, fresh.Groups, 1)
	require.Equal(t, "work/coding", fresh.Groups[0].Name)
}

func TestZeroDurationEventsStayVisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.events(t,
		domain.Event{Timestamp: day, App: str("Chrome"), Duration: 600},
		domain.Event{Timestamp: day.Add(time.Minute), App: str("Chrome"), Duration: 0},
		domain.Event{Timestamp: day.Add(2 * time.Minute), App: str("Finder"), Duration: 0},
	)

	page, _, err := f.svc.Timeline(ctx, march1(), nil, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)

	details, err := f.svc.AppDetails(ctx, march1(), "Finder")
	require.NoError(t, err)
	require.Len(t, details, 1)

	apps, err := f.svc.Apps(ctx, march1(), domain.GroupByApp, 0)
	require.NoError(t, err)
	require.Equal(t, "Chrome", apps[0].App)
	require.Equal(t, int64(2), apps[0].Events)
	require.Equal(t, int64(600), apps[0].Seconds)

	summary, err := f.svc.Summary(ctx, march1(), domain.GroupByApp)
	require.NoError(t, err)
	require.Equal(t, int64(600), summary.TotalActiveSeconds)
	require.Len(t, summary.Groups, 1)
	require.Equal(t, "Chrome", summary.Groups[0].Name)
}
