package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/events"
)

// ApplyRuleChange implements domain.RuleStore. The transaction holds a global advisory
// lock so overlapping mutations commit one after another.
func (r *Repository) ApplyRuleChange(ctx context.Context, fn func(ctx context.Context, tx domain.RuleTx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ruleWriterLock); err != nil {
		return err
	}
	if err = fn(ctx, &ruleTx{tx: tx, changeLog: r.changeLog, route: r.route}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type ruleTx struct {
	tx        pgx.Tx
	changeLog bool
	route     func(eventType string) EventMetadata
}

const ruleColumns = `id, category_id, field, pattern, is_builtin, priority`

func (t *ruleTx) RuleByID(ctx context.Context, id int64) (*domain.CategoryRule, error) {
	return scanRule(t.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM category_rules WHERE id = $1 FOR UPDATE`, id))
}

func (t *ruleTx) UserRule(ctx context.Context, field domain.Field, pattern string) (*domain.CategoryRule, error) {
	return scanRule(t.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM category_rules
        WHERE NOT is_builtin AND field = $1 AND pattern = $2
        ORDER BY id LIMIT 1`, field.String(), pattern))
}

func (t *ruleTx) BuiltinRule(ctx context.Context, field domain.Field, pattern string) (*domain.CategoryRule, error) {
	return scanRule(t.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM category_rules
        WHERE is_builtin AND field = $1 AND pattern = $2
        ORDER BY priority DESC, id ASC LIMIT 1`, field.String(), pattern))
}

func (t *ruleTx) CategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	return scanCategory(t.tx.QueryRow(ctx, `SELECT id, name, parent_id, productivity_score FROM categories WHERE id = $1`, id))
}

func (t *ruleTx) CategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return scanCategory(t.tx.QueryRow(ctx, `SELECT id, name, parent_id, productivity_score FROM categories WHERE name = $1`, name))
}

func (t *ruleTx) Rules(ctx context.Context) ([]domain.CategoryRule, error) {
	return queryRules(ctx, t.tx, `SELECT `+ruleColumns+` FROM category_rules ORDER BY priority DESC, id ASC`)
}

func (t *ruleTx) InsertRule(ctx context.Context, rule domain.CategoryRule) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO category_rules (category_id, field, pattern, is_builtin, priority)
        VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		rule.CategoryID, rule.Field.String(), rule.Pattern, rule.IsBuiltin, rule.Priority).Scan(&id)
	return id, err
}

func (t *ruleTx) SetRuleCategory(ctx context.Context, ruleID, categoryID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE category_rules SET category_id = $1 WHERE id = $2`, categoryID, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

func (t *ruleTx) DeleteRule(ctx context.Context, ruleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM category_rules WHERE id = $1`, ruleID)
	return err
}

// Recategorize only touches rows whose category actually changes.
func (t *ruleTx) Recategorize(ctx context.Context, field domain.Field, pattern string, categoryID *int64) (int64, error) {
	clause, err := matchClause(field)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE events SET category_id = $1::bigint
        WHERE NOT is_afk AND `+clause+` AND category_id IS DISTINCT FROM $1::bigint`, categoryID, pattern)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *ruleTx) ClassifyUnassigned(ctx context.Context, field domain.Field, pattern string, categoryID int64) (int64, error) {
	clause, err := matchClause(field)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE events SET category_id = $1
        WHERE category_id IS NULL AND NOT is_afk AND `+clause, categoryID, pattern)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecordRuleChange writes a category_rule.changed outbox row inside the rule transaction.
func (t *ruleTx) RecordRuleChange(ctx context.Context, change domain.RuleChange) error {
	if !t.changeLog {
		return nil
	}
	payload := events.CategoryRuleChanged{
		Action:     string(change.Action),
		RuleID:     change.RuleID,
		Pattern:    change.Pattern,
		CategoryID: change.CategoryID,
		Affected:   change.Affected,
		OccurredAt: change.OccurredAt,
	}
	partitionKey := string(change.Action)
	if change.Field.Valid() {
		payload.Field = change.Field.String()
		partitionKey = change.Field.String() + ":" + change.Pattern
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := t.route(events.CategoryRuleChangedType)
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", events.CategoryRuleChangedType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = t.tx.Exec(ctx, stmt,
		"category_rule",
		strconv.FormatInt(change.RuleID, 10),
		events.CategoryRuleChangedType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		fmt.Sprintf("%s:%s", events.CategoryRuleChangedType, uuid.NewString()),
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.CategoryRuleChangedType: {
		Topic:         "category_rule_changes",
		SchemaSubject: "category_rule_changes-value",
	},
}

// route resolves the outbox metadata for eventType, honouring a configured topic override.
func (r *Repository) route(eventType string) EventMetadata {
	meta := eventCatalog[eventType]
	if topic, ok := r.topics[eventType]; ok && topic != "" {
		meta = EventMetadata{Topic: topic, SchemaSubject: topic + "-value"}
	}
	return meta
}

func matchClause(field domain.Field) (string, error) {
	switch field {
	case domain.FieldApp:
		return `app = $2`, nil
	case domain.FieldURLDomain:
		return `url_domain = $2`, nil
	case domain.FieldTitle:
		return `strpos(title, $2) > 0`, nil
	default:
		return "", fmt.Errorf("unsupported field %s", field)
	}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRules(ctx context.Context, q querier, query string, args ...any) ([]domain.CategoryRule, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (*domain.CategoryRule, error) {
	var (
		rule  domain.CategoryRule
		field string
	)
	if err := row.Scan(&rule.ID, &rule.CategoryID, &field, &rule.Pattern, &rule.IsBuiltin, &rule.Priority); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f, err := domain.ParseField(field)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", rule.ID, err)
	}
	rule.Field = f
	return &rule, nil
}
