// Package postgres implements the domain store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/events"
)

// ruleWriterLock is the advisory lock key every rule mutation takes.
const ruleWriterLock int64 = 0x74696d656c79

// Repository provides Postgres-backed persistence for categories, rules, events and the outbox.
type Repository struct {
	pool      *pgxpool.Pool
	changeLog bool
	topics    map[string]string
}

// Option configures a Repository.
type Option func(*Repository)

// WithChangeLog controls whether committed rule changes are written to the outbox.
func WithChangeLog(enabled bool) Option {
	return func(r *Repository) { r.changeLog = enabled }
}

// WithRuleChangeTopic routes category_rule.changed events to topic.
func WithRuleChangeTopic(topic string) Option {
	return func(r *Repository) { r.topics[events.CategoryRuleChangedType] = topic }
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, changeLog: true, topics: make(map[string]string)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const eventColumns = `e.id, e.timestamp, e.app, e.title, e.url, e.url_domain, e.duration, e.is_afk, e.category_id,
        COALESCE(e.source_event_id, ''), COALESCE(e.device_id, ''),
        COALESCE(c.name, 'uncategorized'), COALESCE(c.productivity_score, 0)`

// visibleRange filters $1..$2 to non-AFK events, zero durations included.
const visibleRange = `e.timestamp >= $1 AND e.timestamp <= $2 AND NOT e.is_afk`

// activeRange further drops zero-duration events, for bucketed seconds and focus analysis.
const activeRange = visibleRange + ` AND e.duration > 0`

// ListCategories implements domain.CategoryStore.
func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, parent_id, productivity_score FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.ProductivityScore); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryByID implements domain.CategoryStore.
func (r *Repository) CategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `SELECT id, name, parent_id, productivity_score FROM categories WHERE id = $1`, id))
}

// CategoryByName implements domain.CategoryStore.
func (r *Repository) CategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `SELECT id, name, parent_id, productivity_score FROM categories WHERE name = $1`, name))
}

func scanCategory(row pgx.Row) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.ProductivityScore); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListRules implements domain.RuleStore.
func (r *Repository) ListRules(ctx context.Context) ([]domain.RuleView, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.category_id, r.field, r.pattern, r.is_builtin, r.priority, COALESCE(c.name, '')
        FROM category_rules r LEFT JOIN categories c ON c.id = r.category_id
        ORDER BY r.priority DESC, r.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RuleView
	for rows.Next() {
		var (
			view  domain.RuleView
			field string
		)
		if err := rows.Scan(&view.ID, &view.CategoryID, &field, &view.Pattern, &view.IsBuiltin, &view.Priority, &view.CategoryName); err != nil {
			return nil, err
		}
		if view.Field, err = domain.ParseField(field); err != nil {
			return nil, fmt.Errorf("rule %d: %w", view.ID, err)
		}
		out = append(out, view)
	}
	return out, rows.Err()
}

// AppendEvents implements domain.EventStore. Replays of a source event id are ignored.
func (r *Repository) AppendEvents(ctx context.Context, events []domain.Event) (int64, error) {
	const stmt = `INSERT INTO events (timestamp, app, title, url, url_domain, duration, is_afk, source_event_id, device_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (source_event_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(stmt, e.Timestamp, e.App, e.Title, e.URL, e.URLDomain, e.Duration, e.IsAFK, nullIfEmpty(e.SourceEventID), nullIfEmpty(e.DeviceID))
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	var inserted int64
	for range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, err
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ActivityTotals implements domain.EventStore.
func (r *Repository) ActivityTotals(ctx context.Context, p domain.Period) ([]domain.ActivityTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(e.app, ''), COALESCE(e.url_domain, ''),
            COALESCE(c.name, 'uncategorized'), COALESCE(c.productivity_score, 0),
            SUM(e.duration), COUNT(*)
        FROM events e LEFT JOIN categories c ON c.id = e.category_id
        WHERE `+visibleRange+`
        GROUP BY 1, 2, 3, 4`, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityTotal
	for rows.Next() {
		var t domain.ActivityTotal
		if err := rows.Scan(&t.App, &t.URLDomain, &t.Category, &t.ProductivityScore, &t.Seconds, &t.Events); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// bucketFormats mirrors domain.Interval.Bucket in to_char patterns.
var bucketFormats = map[domain.Interval]string{
	domain.IntervalHour:  `YYYY-MM-DD"T"HH24":00"`,
	domain.IntervalDay:   `YYYY-MM-DD`,
	domain.IntervalWeek:  `IYYY-"W"IW`,
	domain.IntervalMonth: `YYYY-MM`,
}

// BucketTotals implements domain.EventStore. Buckets are labelled in loc, which must be an
// IANA zone name Postgres knows.
func (r *Repository) BucketTotals(ctx context.Context, p domain.Period, iv domain.Interval, loc *time.Location) ([]domain.BucketTotal, error) {
	format, ok := bucketFormats[iv]
	if !ok {
		format = bucketFormats[domain.IntervalDay]
	}
	zone := "UTC"
	if loc != nil && loc.String() != "Local" {
		zone = loc.String()
	}

	rows, err := r.pool.Query(ctx, `SELECT to_char(e.timestamp AT TIME ZONE $3, $4),
            COALESCE(c.name, 'uncategorized'), COALESCE(c.productivity_score, 0), SUM(e.duration)
        FROM events e LEFT JOIN categories c ON c.id = e.category_id
        WHERE `+activeRange+`
        GROUP BY 1, 2, 3
        ORDER BY 1`, p.Start, p.End, zone, format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BucketTotal
	for rows.Next() {
		var b domain.BucketTotal
		if err := rows.Scan(&b.Bucket, &b.Category, &b.ProductivityScore, &b.Seconds); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Timeline implements domain.EventStore.
func (r *Repository) Timeline(ctx context.Context, p domain.Period, after *domain.Cursor, limit int) ([]domain.EventView, error) {
	args := []any{p.Start, p.End, limit}
	query := `SELECT ` + eventColumns + `
        FROM events e LEFT JOIN categories c ON c.id = e.category_id
        WHERE ` + visibleRange
	if after != nil {
		query += ` AND (e.timestamp, e.id) > ($4, $5)`
		args = append(args, after.Timestamp, after.ID)
	}
	query += ` ORDER BY e.timestamp, e.id LIMIT $3`
	return r.queryEvents(ctx, query, args...)
}

// ActiveEvents implements domain.EventStore.
func (r *Repository) ActiveEvents(ctx context.Context, p domain.Period) ([]domain.EventView, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+`
        FROM events e LEFT JOIN categories c ON c.id = e.category_id
        WHERE `+activeRange+`
        ORDER BY e.timestamp, e.id`, p.Start, p.End)
}

// AppEvents implements domain.EventStore.
func (r *Repository) AppEvents(ctx context.Context, p domain.Period, name string, limit int) ([]domain.EventView, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+`
        FROM events e LEFT JOIN categories c ON c.id = e.category_id
        WHERE `+visibleRange+` AND (e.app = $3 OR e.url_domain = $3)
        ORDER BY e.timestamp, e.id
        LIMIT $4`, p.Start, p.End, name, limit)
}

// LatestEvent implements domain.EventStore.
func (r *Repository) LatestEvent(ctx context.Context) (*domain.EventView, error) {
	events, err := r.queryEvents(ctx, `SELECT `+eventColumns+`
        FROM events e LEFT JOIN categories c ON c.id = e.category_id
        ORDER BY e.timestamp DESC, e.id DESC
        LIMIT 1`)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

func (r *Repository) queryEvents(ctx context.Context, query string, args ...any) ([]domain.EventView, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.EventView, 0)
	for rows.Next() {
		var v domain.EventView
		if err := rows.Scan(&v.ID, &v.Timestamp, &v.App, &v.Title, &v.URL, &v.URLDomain, &v.Duration, &v.IsAFK, &v.CategoryID,
			&v.SourceEventID, &v.DeviceID, &v.Category, &v.ProductivityScore); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
