package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Bhavikpatel576/timely/internal/domain"
)

// AddCategory inserts a category unless one with the same name exists, and returns its id.
func (r *Repository) AddCategory(ctx context.Context, name, parentName string, score int) (int64, error) {
	if _, err := r.pool.Exec(ctx, `INSERT INTO categories (name, parent_id, productivity_score)
        VALUES ($1, (SELECT id FROM categories WHERE name = $2), $3)
        ON CONFLICT (name) DO NOTHING`, name, parentName, score); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	return id, err
}

// SyncBuiltinRules makes the stored built-in rules equal to rules. It runs under the rule
// writer lock; user rules and event assignments are left alone.
func (r *Repository) SyncBuiltinRules(ctx context.Context, rules []domain.CategoryRule) (inserted, pruned int64, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ruleWriterLock); err != nil {
		return 0, 0, err
	}

	existing, err := queryRules(ctx, tx, `SELECT `+ruleColumns+` FROM category_rules WHERE is_builtin ORDER BY id`)
	if err != nil {
		return 0, 0, err
	}

	type key struct {
		field      domain.Field
		pattern    string
		categoryID int64
		priority   int
	}
	keyOf := func(r domain.CategoryRule) key {
		return key{field: r.Field, pattern: r.Pattern, categoryID: r.CategoryID, priority: r.Priority}
	}

	wanted := make(map[key]bool, len(rules))
	for _, rule := range rules {
		wanted[keyOf(rule)] = true
	}
	present := make(map[key]bool, len(existing))
	for _, rule := range existing {
		k := keyOf(rule)
		if !wanted[k] || present[k] {
			if _, err = tx.Exec(ctx, `DELETE FROM category_rules WHERE id = $1`, rule.ID); err != nil {
				return 0, 0, err
			}
			pruned++
			continue
		}
		present[k] = true
	}
	for _, rule := range rules {
		k := keyOf(rule)
		if present[k] {
			continue
		}
		present[k] = true
		if _, err = tx.Exec(ctx, `INSERT INTO category_rules (category_id, field, pattern, is_builtin, priority)
            VALUES ($1,$2,$3,TRUE,$4)`, rule.CategoryID, rule.Field.String(), rule.Pattern, rule.Priority); err != nil {
			return 0, 0, err
		}
		inserted++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return inserted, pruned, nil
}
