// Package domain holds the classification rules, the recategorization protocol and the
// aggregation pipeline that every report reads.
package domain

import (
	"context"
	"log/slog"
	"time"
)

// CategoryStore reads the category catalog.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CategoryByID(ctx context.Context, id int64) (*Category, error)
	CategoryByName(ctx context.Context, name string) (*Category, error)
}

// RuleStore lists rules and runs rule mutations as a single unit of work.
type RuleStore interface {
	ListRules(ctx context.Context) ([]RuleView, error)
	// ApplyRuleChange runs fn under the store's single-writer lock. The rule table change,
	// the event reassignment and the change record commit together or not at all.
	ApplyRuleChange(ctx context.Context, fn func(ctx context.Context, tx RuleTx) error) error
}

// RuleTx is the view of the store available inside ApplyRuleChange.
// Lookups return nil, nil when the row does not exist.
type RuleTx interface {
	RuleByID(ctx context.Context, id int64) (*CategoryRule, error)
	UserRule(ctx context.Context, field Field, pattern string) (*CategoryRule, error)
	// BuiltinRule returns the highest-priority built-in rule for the pair, lowest id first on ties.
	BuiltinRule(ctx context.Context, field Field, pattern string) (*CategoryRule, error)
	CategoryByID(ctx context.Context, id int64) (*Category, error)
	CategoryByName(ctx context.Context, name string) (*Category, error)
	// Rules returns every rule ordered by priority desc, id asc.
	Rules(ctx context.Context) ([]CategoryRule, error)
	InsertRule(ctx context.Context, rule CategoryRule) (int64, error)
	SetRuleCategory(ctx context.Context, ruleID, categoryID int64) error
	DeleteRule(ctx context.Context, ruleID int64) error
	// Recategorize assigns categoryID (nil clears it) to every non-AFK event matching the
	// predicate and returns how many events changed category.
	Recategorize(ctx context.Context, field Field, pattern string, categoryID *int64) (int64, error)
	// ClassifyUnassigned is Recategorize restricted to events with no category yet.
	ClassifyUnassigned(ctx context.Context, field Field, pattern string, categoryID int64) (int64, error)
	RecordRuleChange(ctx context.Context, change RuleChange) error
}

// EventStore answers the range-scoped reads and accepts captured events.
// Range reads exclude AFK events. BucketTotals and ActiveEvents also skip zero
// durations; ActivityTotals keeps them so event counts stay exact.
type EventStore interface {
	AppendEvents(ctx context.Context, events []Event) (int64, error)
	ActivityTotals(ctx context.Context, p Period) ([]ActivityTotal, error)
	BucketTotals(ctx context.Context, p Period, iv Interval, loc *time.Location) ([]BucketTotal, error)
	Timeline(ctx context.Context, p Period, after *Cursor, limit int) ([]EventView, error)
	ActiveEvents(ctx context.Context, p Period) ([]EventView, error)
	AppEvents(ctx context.Context, p Period, name string, limit int) ([]EventView, error)
	// LatestEvent ignores AFK state. Returns nil, nil when no events exist.
	LatestEvent(ctx context.Context) (*EventView, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	CategoryStore
	RuleStore
	EventStore
}

// Palette assigns display colors to category names.
type Palette interface {
	Color(name string) string
}

// ReportCache memoizes report results for periods that have already ended.
type ReportCache interface {
	// Get decodes the entry for key into dst. The returned slot is bound to the generation
	// current at lookup; a value loaded after a miss is stored with Set under that slot, so a
	// result computed before an Invalidate is never served after it. An empty slot means
	// the value must not be stored.
	Get(ctx context.Context, key string, dst any) (slot string, hit bool, err error)
	Set(ctx context.Context, slot string, value any) error
	// Invalidate drops every cached report. Called after each committed classification change.
	Invalidate(ctx context.Context) error
}

// Service orchestrates rule workflows and reports.
type Service struct {
	store   Store
	palette Palette
	cache   ReportCache
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the zone used to expand calendar dates and label trend buckets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPalette sets the color lookup used for categories and summary groups.
func WithPalette(p Palette) Option {
	return func(s *Service) { s.palette = p }
}

// WithCache enables report caching.
func WithCache(c ReportCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  noCache{},
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the configured report zone.
func (s *Service) Location() *time.Location { return s.loc }

// Period expands calendar dates in the service's zone relative to its clock.
func (s *Service) Period(from, to string) Period {
	return NewPeriod(from, to, s.now(), s.loc)
}

func (s *Service) color(name string) string {
	if s.palette == nil {
		return ""
	}
	return s.palette.Color(name)
}

type noCache struct{}

func (noCache) Get(context.Context, string, any) (string, bool, error) { return "", false, nil }
func (noCache) Set(context.Context, string, any) error                 { return nil }
func (noCache) Invalidate(context.Context) error                       { return nil }
