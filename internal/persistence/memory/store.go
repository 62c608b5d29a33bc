// Package memory is an in-process implementation of the domain store, used for local
// runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bhavikpatel576/timely/internal/domain"
)

// Store keeps categories, rules and events in memory. Rule mutations stage on a copy of
// the state and swap it in on success, so a failed mutation leaves nothing behind.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	categories   map[int64]domain.Category
	rules        map[int64]domain.CategoryRule
	events       []domain.Event
	sources      map[string]struct{}
	changes      []domain.RuleChange
	nextCategory int64
	nextRule     int64
	nextEvent    int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{st: &state{
		categories: make(map[int64]domain.Category),
		rules:      make(map[int64]domain.CategoryRule),
		sources:    make(map[string]struct{}),
	}}
}

func (s *state) clone() *state {
	c := &state{
		categories:   make(map[int64]domain.Category, len(s.categories)),
		rules:        make(map[int64]domain.CategoryRule, len(s.rules)),
		events:       make([]domain.Event, len(s.events)),
		sources:      s.sources,
		changes:      append([]domain.RuleChange(nil), s.changes...),
		nextCategory: s.nextCategory,
		nextRule:     s.nextRule,
		nextEvent:    s.nextEvent,
	}
	for id, cat := range s.categories {
		c.categories[id] = cat
	}
	for id, rule := range s.rules {
		c.rules[id] = rule
	}
	copy(c.events, s.events)
	return c
}

// AddCategory inserts a category, resolving parentName to its id when given.
// An existing category with the same name is returned unchanged.
func (s *Store) AddCategory(_ context.Context, name, parentName string, score int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat := s.st.categoryByName(name); cat != nil {
		return cat.ID, nil
	}
	cat := domain.Category{Name: name, ProductivityScore: score}
	if parentName != "" {
		if parent := s.st.categoryByName(parentName); parent != nil {
			id := parent.ID
			cat.ParentID = &id
		}
	}
	s.st.nextCategory++
	cat.ID = s.st.nextCategory
	s.st.categories[cat.ID] = cat
	return cat.ID, nil
}

// SyncBuiltinRules makes the built-in rule set equal to rules: missing rules are inserted
// and built-in rules no longer listed are removed. User rules are untouched.
func (s *Store) SyncBuiltinRules(_ context.Context, rules []domain.CategoryRule) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[builtinKey]domain.CategoryRule, len(rules))
	for _, r := range rules {
		wanted[keyOf(r)] = r
	}
	var inserted, pruned int64
	present := make(map[builtinKey]bool)
	for _, r := range s.st.orderedRules() {
		id := r.ID
		if !r.IsBuiltin {
			continue
		}
		if _, ok := wanted[keyOf(r)]; !ok || present[keyOf(r)] {
			delete(s.st.rules, id)
			pruned++
			continue
		}
		present[keyOf(r)] = true
	}
	for _, r := range rules {
		if present[keyOf(r)] {
			continue
		}
		present[keyOf(r)] = true
		r.IsBuiltin = true
		s.st.nextRule++
		r.ID = s.st.nextRule
		s.st.rules[r.ID] = r
		inserted++
	}
	return inserted, pruned, nil
}

type builtinKey struct {
	field      domain.Field
	pattern    string
	categoryID int64
	priority   int
}

func keyOf(r domain.CategoryRule) builtinKey {
	return builtinKey{field: r.Field, pattern: r.Pattern, categoryID: r.CategoryID, priority: r.Priority}
}

// Changes returns the rule change records committed so far.
func (s *Store) Changes() []domain.RuleChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RuleChange(nil), s.st.changes...)
}

// ListCategories implements domain.CategoryStore.
func (s *Store) ListCategories(context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.st.categories))
	for _, c := range s.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CategoryByID implements domain.CategoryStore.
func (s *Store) CategoryByID(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.categoryByID(id), nil
}

// CategoryByName implements domain.CategoryStore.
func (s *Store) CategoryByName(_ context.Context, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.categoryByName(name), nil
}

// ListRules implements domain.RuleStore.
func (s *Store) ListRules(context.Context) ([]domain.RuleView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := s.st.orderedRules()
	out := make([]domain.RuleView, 0, len(rules))
	for _, r := range rules {
		view := domain.RuleView{CategoryRule: r}
		if c := s.st.categoryByID(r.CategoryID); c != nil {
			view.CategoryName = c.Name
		}
		out = append(out, view)
	}
	return out, nil
}

// ApplyRuleChange implements domain.RuleStore.
func (s *Store) ApplyRuleChange(ctx context.Context, fn func(ctx context.Context, tx domain.RuleTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.st.clone()
	if err := fn(ctx, &ruleTx{st: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// AppendEvents implements domain.EventStore. Events whose SourceEventID was already
// stored are skipped.
func (s *Store) AppendEvents(_ context.Context, events []domain.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range events {
		if e.SourceEventID != "" {
			if _, dup := s.st.sources[e.SourceEventID]; dup {
				continue
			}
			s.st.sources[e.SourceEventID] = struct{}{}
		}
		s.st.nextEvent++
		e.ID = s.st.nextEvent
		s.st.events = append(s.st.events, e)
		n++
	}
	return n, nil
}

// ActivityTotals implements domain.EventStore.
func (s *Store) ActivityTotals(_ context.Context, p domain.Period) ([]domain.ActivityTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		app, domain, category string
		score                 int
	}
	sums := make(map[key]*domain.ActivityTotal)
	var order []key
	for _, e := range s.st.events {
		if !visible(e, p) {
			continue
		}
		name, score := s.st.categoryOf(e)
		k := key{app: deref(e.App), domain: deref(e.URLDomain), category: name, score: score}
		row := sums[k]
		if row == nil {
			row = &domain.ActivityTotal{App: k.app, URLDomain: k.domain, Category: name, ProductivityScore: score}
			sums[k] = row
			order = append(order, k)
		}
		row.Seconds += e.Duration
		row.Events++
	}
	out := make([]domain.ActivityTotal, 0, len(order))
	for _, k := range order {
		out = append(out, *sums[k])
	}
	return out, nil
}

// BucketTotals implements domain.EventStore.
func (s *Store) BucketTotals(_ context.Context, p domain.Period, iv domain.Interval, loc *time.Location) ([]domain.BucketTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		bucket, category string
		score            int
	}
	sums := make(map[key]float64)
	var order []key
	for _, e := range s.st.events {
		if !counted(e, p) {
			continue
		}
		name, score := s.st.categoryOf(e)
		k := key{bucket: iv.Bucket(e.Timestamp, loc), category: name, score: score}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += e.Duration
	}
	out := make([]domain.BucketTotal, 0, len(order))
	for _, k := range order {
		out = append(out, domain.BucketTotal{Bucket: k.bucket, Category: k.category, ProductivityScore: k.score, Seconds: sums[k]})
	}
	return out, nil
}

// Timeline implements domain.EventStore.
func (s *Store) Timeline(_ context.Context, p domain.Period, after *domain.Cursor, limit int) ([]domain.EventView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.views(limit, func(e domain.Event) bool {
		if !visible(e, p) {
			return false
		}
		if after == nil {
			return true
		}
		return e.Timestamp.After(after.Timestamp) || (e.Timestamp.Equal(after.Timestamp) && e.ID > after.ID)
	}), nil
}

// ActiveEvents implements domain.EventStore.
func (s *Store) ActiveEvents(_ context.Context, p domain.Period) ([]domain.EventView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.views(0, func(e domain.Event) bool {
		return counted(e, p)
	}), nil
}

// AppEvents implements domain.EventStore.
func (s *Store) AppEvents(_ context.Context, p domain.Period, name string, limit int) ([]domain.EventView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.views(limit, func(e domain.Event) bool {
		return visible(e, p) && (deref(e.App) == name || deref(e.URLDomain) == name)
	}), nil
}

// LatestEvent implements domain.EventStore.
func (s *Store) LatestEvent(context.Context) (*domain.EventView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Event
	for i := range s.st.events {
		e := &s.st.events[i]
		if latest == nil || e.Timestamp.After(latest.Timestamp) || (e.Timestamp.Equal(latest.Timestamp) && e.ID > latest.ID) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	view := s.st.view(*latest)
	return &view, nil
}

func (s *state) categoryByID(id int64) *domain.Category {
	c, ok := s.categories[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *state) categoryByName(name string) *domain.Category {
	for _, c := range s.categories {
		if c.Name == name {
			c := c
			return &c
		}
	}
	return nil
}

func (s *state) categoryOf(e domain.Event) (string, int) {
	if e.CategoryID != nil {
		if c, ok := s.categories[*e.CategoryID]; ok {
			return c.Name, c.ProductivityScore
		}
	}
	return domain.UncategorizedName, 0
}

func (s *state) view(e domain.Event) domain.EventView {
	name, score := s.categoryOf(e)
	return domain.EventView{Event: e, Category: name, ProductivityScore: score}
}

// views returns matching events ordered by (timestamp, id); limit 0 means unbounded.
func (s *state) views(limit int, match func(domain.Event) bool) []domain.EventView {
	var out []domain.EventView
	for _, e := range s.events {
		if match(e) {
			out = append(out, s.view(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []domain.EventView{}
	}
	return out
}

func (s *state) orderedRules() []domain.CategoryRule {
	out := make([]domain.CategoryRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func inPeriod(e domain.Event, p domain.Period) bool {
	return !e.Timestamp.Before(p.Start) && !e.Timestamp.After(p.End)
}

// visible reports whether e is a non-AFK event of the period.
func visible(e domain.Event, p domain.Period) bool {
	return !e.IsAFK && inPeriod(e, p)
}

// counted additionally drops zero durations, for bucketed seconds and focus.
func counted(e domain.Event, p domain.Period) bool {
	return visible(e, p) && e.Duration > 0
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
