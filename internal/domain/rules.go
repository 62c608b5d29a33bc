package domain

import (
	"context"
	"strings"

	"github.com/Bhavikpatel576/timely/internal/observability"
)

// UpsertRuleInput captures a rule create-or-update request.
type UpsertRuleInput struct {
	Field      string
	Pattern    string
	CategoryID int64
}

// Validate checks the request and returns the parsed field.
func (in UpsertRuleInput) Validate() (Field, error) {
	if strings.TrimSpace(in.Field) == "" {
		return 0, &ValidationError{Field: "field", Reason: "required"}
	}
	field, err := ParseField(in.Field)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return 0, &ValidationError{Field: "pattern", Reason: "required"}
	}
	if in.CategoryID <= 0 {
		return 0, &ValidationError{Field: "category_id", Reason: "required"}
	}
	return field, nil
}

// RuleResult reports the outcome of a rule mutation.
type RuleResult struct {
	RuleID   int64
	Created  bool
	Affected int64
}

// Resolution is the category a set of event attributes classifies into.
type Resolution struct {
	RuleID     *int64
	CategoryID *int64
	Category   string
}

// ListRules returns every rule, highest priority first.
func (s *Service) ListRules(ctx context.Context) ([]RuleView, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, storageErr("list rules", err)
	}
	return rules, nil
}

// UpsertRule creates or retargets the user rule for (field, pattern) and recategorizes matching events.
func (s *Service) UpsertRule(ctx context.Context, in UpsertRuleInput) (RuleResult, error) {
	field, err := in.Validate()
	if err != nil {
		return RuleResult{}, err
	}

	var res RuleResult
	err = s.store.ApplyRuleChange(ctx, func(ctx context.Context, tx RuleTx) error {
		if err := requireCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		existing, err := tx.UserRule(ctx, field, in.Pattern)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := tx.SetRuleCategory(ctx, existing.ID, in.CategoryID); err != nil {
				return err
			}
			res.RuleID = existing.ID
		} else {
			id, err := tx.InsertRule(ctx, CategoryRule{
				CategoryID: in.CategoryID,
				Field:      field,
				Pattern:    in.Pattern,
				Priority:   UserRulePriority,
			})
			if err != nil {
				return err
			}
			res.RuleID, res.Created = id, true
		}
		categoryID := in.CategoryID
		if res.Affected, err = tx.Recategorize(ctx, field, in.Pattern, &categoryID); err != nil {
			return err
		}
		return tx.RecordRuleChange(ctx, RuleChange{
			Action:     RuleActionUpserted,
			RuleID:     res.RuleID,
			Field:      field,
			Pattern:    in.Pattern,
			CategoryID: &categoryID,
			Affected:   res.Affected,
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return RuleResult{}, storageErr("upsert rule", err)
	}
	s.committed(ctx, RuleActionUpserted, res.RuleID, res.Affected)
	return res, nil
}

// UpdateRuleCategory retargets an existing user rule.
func (s *Service) UpdateRuleCategory(ctx context.Context, ruleID, categoryID int64) (int64, error) {
	if categoryID <= 0 {
		return 0, &ValidationError{Field: "category_id", Reason: "required"}
	}

	var affected int64
	err := s.store.ApplyRuleChange(ctx, func(ctx context.Context, tx RuleTx) error {
		rule, err := mutableRule(ctx, tx, ruleID)
		if err != nil {
			return err
		}
		if err := requireCategory(ctx, tx, categoryID); err != nil {
			return err
		}
		if err := tx.SetRuleCategory(ctx, rule.ID, categoryID); err != nil {
			return err
		}
		if affected, err = tx.Recategorize(ctx, rule.Field, rule.Pattern, &categoryID); err != nil {
			return err
		}
		return tx.RecordRuleChange(ctx, RuleChange{
			Action:     RuleActionUpdated,
			RuleID:     rule.ID,
			Field:      rule.Field,
			Pattern:    rule.Pattern,
			CategoryID: &categoryID,
			Affected:   affected,
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return 0, storageErr("update rule", err)
	}
	s.committed(ctx, RuleActionUpdated, ruleID, affected)
	return affected, nil
}

// DeleteRule removes a user rule. Matching events fall back to a built-in rule for the
// same (field, pattern) when one exists, otherwise to the uncategorized category.
func (s *Service) DeleteRule(ctx context.Context, ruleID int64) (int64, error) {
	var affected int64
	err := s.store.ApplyRuleChange(ctx, func(ctx context.Context, tx RuleTx) error {
		rule, err := mutableRule(ctx, tx, ruleID)
		if err != nil {
			return err
		}
		fallback, err := fallbackCategory(ctx, tx, rule.Field, rule.Pattern)
		if err != nil {
			return err
		}
		if affected, err = tx.Recategorize(ctx, rule.Field, rule.Pattern, fallback); err != nil {
			return err
		}
		if err := tx.DeleteRule(ctx, rule.ID); err != nil {
			return err
		}
		return tx.RecordRuleChange(ctx, RuleChange{
			Action:     RuleActionDeleted,
			RuleID:     rule.ID,
			Field:      rule.Field,
			Pattern:    rule.Pattern,
			CategoryID: fallback,
			Affected:   affected,
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return 0, storageErr("delete rule", err)
	}
	s.committed(ctx, RuleActionDeleted, ruleID, affected)
	return affected, nil
}

// ClassifyPending assigns categories to events that no rule has touched yet.
// Rules run in list order and each only claims rows still unassigned, so the first
// matching rule wins as it does in Resolve.
func (s *Service) ClassifyPending(ctx context.Context) (int64, error) {
	var total int64
	err := s.store.ApplyRuleChange(ctx, func(ctx context.Context, tx RuleTx) error {
		total = 0
		rules, err := tx.Rules(ctx)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			n, err := tx.ClassifyUnassigned(ctx, rule.Field, rule.Pattern, rule.CategoryID)
			if err != nil {
				return err
			}
			total += n
		}
		if total == 0 {
			return nil
		}
		return tx.RecordRuleChange(ctx, RuleChange{
			Action:     RuleActionBackfill,
			Affected:   total,
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return 0, storageErr("classify pending", err)
	}
	if total > 0 {
		s.committed(ctx, RuleActionBackfill, 0, total)
	}
	return total, nil
}

// Resolve returns the category the current rules assign to the given attributes.
func (s *Service) Resolve(ctx context.Context, app, title, urlDomain *string) (Resolution, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return Resolution{}, storageErr("resolve", err)
	}
	probe := Event{App: app, Title: title, URLDomain: urlDomain}
	for _, rule := range rules {
		if !rule.Applies(probe) {
			continue
		}
		id, catID := rule.ID, rule.CategoryID
		return Resolution{RuleID: &id, CategoryID: &catID, Category: rule.CategoryName}, nil
	}
	res := Resolution{Category: UncategorizedName}
	cat, err := s.store.CategoryByName(ctx, UncategorizedName)
	if err != nil {
		return Resolution{}, storageErr("resolve", err)
	}
	if cat != nil {
		res.CategoryID = &cat.ID
	}
	return res, nil
}

func (s *Service) committed(ctx context.Context, action RuleAction, ruleID, affected int64) {
	observability.RecordRuleMutation(string(action), affected)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("report cache invalidation failed", "error", err)
	}
	s.logger.Info("rule change committed", "action", action, "rule_id", ruleID, "affected", affected)
}

func requireCategory(ctx context.Context, tx RuleTx, id int64) error {
	cat, err := tx.CategoryByID(ctx, id)
	if err != nil {
		return err
	}
	if cat == nil {
		return &ValidationError{Field: "category_id", Reason: "unknown category"}
	}
	return nil
}

func mutableRule(ctx context.Context, tx RuleTx, id int64) (*CategoryRule, error) {
	rule, err := tx.RuleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRuleNotFound
	}
	if rule.IsBuiltin {
		return nil, ErrBuiltinRule
	}
	return rule, nil
}

func fallbackCategory(ctx context.Context, tx RuleTx, field Field, pattern string) (*int64, error) {
	builtin, err := tx.BuiltinRule(ctx, field, pattern)
	if err != nil {
		return nil, err
	}
	if builtin != nil {
		id := builtin.CategoryID
		return &id, nil
	}
	cat, err := tx.CategoryByName(ctx, UncategorizedName)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, nil
	}
	return &cat.ID, nil
}
