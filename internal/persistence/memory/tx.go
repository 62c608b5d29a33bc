package memory

import (
	"context"

	"github.com/Bhavikpatel576/timely/internal/domain"
)

// ruleTx operates on a staged copy of the store state.
type ruleTx struct {
	st *state
}

func (t *ruleTx) RuleByID(_ context.Context, id int64) (*domain.CategoryRule, error) {
	r, ok := t.st.rules[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *ruleTx) UserRule(_ context.Context, field domain.Field, pattern string) (*domain.CategoryRule, error) {
	for _, r := range t.st.orderedRules() {
		if !r.IsBuiltin && r.Field == field && r.Pattern == pattern {
			return &r, nil
		}
	}
	return nil, nil
}

func (t *ruleTx) BuiltinRule(_ context.Context, field domain.Field, pattern string) (*domain.CategoryRule, error) {
	for _, r := range t.st.orderedRules() {
		if r.IsBuiltin && r.Field == field && r.Pattern == pattern {
			return &r, nil
		}
	}
	return nil, nil
}

func (t *ruleTx) CategoryByID(_ context.Context, id int64) (*domain.Category, error) {
	return t.st.categoryByID(id), nil
}

func (t *ruleTx) CategoryByName(_ context.Context, name string) (*domain.Category, error) {
	return t.st.categoryByName(name), nil
}

func (t *ruleTx) Rules(context.Context) ([]domain.CategoryRule, error) {
	return t.st.orderedRules(), nil
}

func (t *ruleTx) InsertRule(_ context.Context, rule domain.CategoryRule) (int64, error) {
	t.st.nextRule++
	rule.ID = t.st.nextRule
	t.st.rules[rule.ID] = rule
	return rule.ID, nil
}

func (t *ruleTx) SetRuleCategory(_ context.Context, ruleID, categoryID int64) error {
	r, ok := t.st.rules[ruleID]
	if !ok {
		return domain.ErrRuleNotFound
	}
	r.CategoryID = categoryID
	t.st.rules[ruleID] = r
	return nil
}

func (t *ruleTx) DeleteRule(_ context.Context, ruleID int64) error {
	delete(t.st.rules, ruleID)
	return nil
}

// Recategorize only counts events whose category actually changes.
func (t *ruleTx) Recategorize(_ context.Context, field domain.Field, pattern string, categoryID *int64) (int64, error) {
	rule := domain.CategoryRule{Field: field, Pattern: pattern}
	var n int64
	for i := range t.st.events {
		e := &t.st.events[i]
		if !rule.Applies(*e) || sameCategory(e.CategoryID, categoryID) {
			continue
		}
		if categoryID == nil {
			e.CategoryID = nil
		} else {
			id := *categoryID
			e.CategoryID = &id
		}
		n++
	}
	return n, nil
}

func (t *ruleTx) ClassifyUnassigned(_ context.Context, field domain.Field, pattern string, categoryID int64) (int64, error) {
	rule := domain.CategoryRule{Field: field, Pattern: pattern}
	var n int64
	for i := range t.st.events {
		e := &t.st.events[i]
		if e.CategoryID != nil || !rule.Applies(*e) {
			continue
		}
		id := categoryID
		e.CategoryID = &id
		n++
	}
	return n, nil
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (t *ruleTx) RecordRuleChange(_ context.Context, change domain.RuleChange) error {
	t.st.changes = append(t.st.changes, change)
	return nil
}
