// Package seed installs the built-in category catalog and its rules.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/Bhavikpatel576/timely/internal/domain"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog is the YAML document describing built-in categories and rules.
type Catalog struct {
	Categories []CategorySpec `yaml:"categories"`
	Rules      []RuleSpec     `yaml:"rules"`
}

// CategorySpec names one category. Parent must appear earlier in the list.
type CategorySpec struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
	Score  int    `yaml:"score"`
}

// RuleSpec is a built-in rule keyed by category name.
type RuleSpec struct {
	Category string `yaml:"category"`
	Field    string `yaml:"field"`
	Pattern  string `yaml:"pattern"`
	Priority int    `yaml:"priority"`
}

// Target is the storage surface seeding needs. Both stores implement it.
type Target interface {
	AddCategory(ctx context.Context, name, parentName string, score int) (int64, error)
	SyncBuiltinRules(ctx context.Context, rules []domain.CategoryRule) (inserted, pruned int64, err error)
}

// Result reports what a seeding pass changed.
type Result struct {
	Categories int
	Inserted   int64
	Pruned     int64
}

// Builtin parses the embedded catalog.
func Builtin() (Catalog, error) {
	return Parse(builtinCatalog)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) validate() error {
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		switch {
		case cat.Name == "":
			return fmt.Errorf("category %d: missing name", i)
		case seen[cat.Name]:
			return fmt.Errorf("category %q: duplicate", cat.Name)
		case cat.Parent != "" && !seen[cat.Parent]:
			return fmt.Errorf("category %q: parent %q must be listed first", cat.Name, cat.Parent)
		case cat.Score < -2 || cat.Score > 2:
			return fmt.Errorf("category %q: score %d out of range", cat.Name, cat.Score)
		}
		seen[cat.Name] = true
	}
	if !seen[domain.UncategorizedName] {
		return fmt.Errorf("catalog must define %q", domain.UncategorizedName)
	}
	for i, r := range c.Rules {
		if !seen[r.Category] {
			return fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		if _, err := domain.ParseField(r.Field); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if r.Pattern == "" {
			return fmt.Errorf("rule %d: missing pattern", i)
		}
		if r.Priority >= domain.UserRulePriority {
			return fmt.Errorf("rule %d: priority %d must stay below user rules", i, r.Priority)
		}
	}
	return nil
}

// Apply inserts missing categories and makes the stored built-in rules match
// the catalog. Running it twice changes nothing the second time.
func Apply(ctx context.Context, target Target, c Catalog, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ids := make(map[string]int64, len(c.Categories))
	for _, cat := range c.Categories {
		id, err := target.AddCategory(ctx, cat.Name, cat.Parent, cat.Score)
		if err != nil {
			return Result{}, fmt.Errorf("seeding category %q: %w", cat.Name, err)
		}
		ids[cat.Name] = id
	}

	rules := make([]domain.CategoryRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		field, _ := domain.ParseField(r.Field)
		rules = append(rules, domain.CategoryRule{
			CategoryID: ids[r.Category],
			Field:      field,
			Pattern:    r.Pattern,
			IsBuiltin:  true,
			Priority:   r.Priority,
		})
	}
	inserted, pruned, err := target.SyncBuiltinRules(ctx, rules)
	if err != nil {
		return Result{}, fmt.Errorf("syncing built-in rules: %w", err)
	}

	res := Result{Categories: len(ids), Inserted: inserted, Pruned: pruned}
	logger.Info("catalog seeded", "categories", res.Categories, "rules_inserted", inserted, "rules_pruned", pruned)
	return res, nil
}
