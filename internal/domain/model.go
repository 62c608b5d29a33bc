package domain

import (
	"fmt"
	"strings"
	"time"
)

// UncategorizedName is the terminal fallback category every store must carry.
const UncategorizedName = "uncategorized"

// UnknownLabel replaces a missing app name in breakdowns.
const UnknownLabel = "Unknown"

// UserRulePriority is assigned to every rule created through the mutation API.
// Built-in rules ship below it so user rules always win.
const UserRulePriority = 100

// Event is one completed activity session recorded by the capture process.
// Only CategoryID changes after the row is written.
type Event struct {
	ID            int64
	Timestamp     time.Time
	App           *string
	Title         *string
	URL           *string
	URLDomain     *string
	Duration      float64
	IsAFK         bool
	CategoryID    *int64
	SourceEventID string
	DeviceID      string
}

// EventView is an event joined with its resolved category.
type EventView struct {
	Event
	Category          string
	ProductivityScore int
}

// Category is a node of the hierarchical catalog. Name encodes the path, e.g. "work/coding".
type Category struct {
	ID                int64
	Name              string
	ParentID          *int64
	ProductivityScore int
}

// Productive reports whether time in the category counts toward focus.
func (c Category) Productive() bool { return c.ProductivityScore > 0 }

// CategoryRule maps a (field, pattern) predicate onto a category.
type CategoryRule struct {
	ID         int64
	CategoryID int64
	Field      Field
	Pattern    string
	IsBuiltin  bool
	Priority   int
}

// Applies reports whether the rule's predicate accepts the event.
// AFK events never match.
func (r CategoryRule) Applies(e Event) bool {
	if e.IsAFK {
		return false
	}
	return r.Field.Matches(r.Field.Attribute(e), r.Pattern)
}

// RuleView is a rule enriched with its target category's name.
type RuleView struct {
	CategoryRule
	CategoryName string
}

// Field is the event attribute a rule matches against.
type Field int

const (
	FieldApp Field = iota + 1
	FieldURLDomain
	FieldTitle
)

// Fields lists every supported field in declaration order.
var Fields = []Field{FieldApp, FieldURLDomain, FieldTitle}

// ParseField converts the wire name into a Field.
func ParseField(raw string) (Field, error) {
	switch strings.TrimSpace(raw) {
	case "app":
		return FieldApp, nil
	case "url_domain":
		return FieldURLDomain, nil
	case "title":
		return FieldTitle, nil
	default:
		return 0, &ValidationError{Field: "field", Reason: fmt.Sprintf("unsupported value %q", raw)}
	}
}

func (f Field) String() string {
	switch f {
	case FieldApp:
		return "app"
	case FieldURLDomain:
		return "url_domain"
	case FieldTitle:
		return "title"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Valid reports whether f is one of the declared fields.
func (f Field) Valid() bool {
	switch f {
	case FieldApp, FieldURLDomain, FieldTitle:
		return true
	}
	return false
}

// Attribute selects the event value the field inspects.
func (f Field) Attribute(e Event) *string {
	switch f {
	case FieldApp:
		return e.App
	case FieldURLDomain:
		return e.URLDomain
	case FieldTitle:
		return e.Title
	default:
		return nil
	}
}

// Matches applies the field's matching semantics. A null attribute never matches.
func (f Field) Matches(value *string, pattern string) bool {
	if value == nil {
		return false
	}
	switch f {
	case FieldApp, FieldURLDomain:
		return *value == pattern
	case FieldTitle:
		return strings.Contains(*value, pattern)
	default:
		return false
	}
}

// RuleAction labels a committed rule mutation.
type RuleAction string

const (
	RuleActionUpserted RuleAction = "upserted"
	RuleActionUpdated  RuleAction = "updated"
	RuleActionDeleted  RuleAction = "deleted"
	RuleActionBackfill RuleAction = "classified"
)

// RuleChange is recorded in the same unit of work as the mutation it describes.
type RuleChange struct {
	Action     RuleAction
	RuleID     int64
	Field      Field
	Pattern    string
	CategoryID *int64
	Affected   int64
	OccurredAt time.Time
}

// ActivityTotal is active time grouped by (app, url_domain, category) as read from storage.
// Empty strings stand for null attributes.
type ActivityTotal struct {
	App               string
	URLDomain         string
	Category          string
	ProductivityScore int
	Seconds           float64
	Events            int64
}

// BucketTotal is active time per (bucket, category).
type BucketTotal struct {
	Bucket            string
	Category          string
	ProductivityScore int
	Seconds           float64
}

// Cursor is the keyset position of a timeline page.
type Cursor struct {
	Timestamp time.Time
	ID        int64
}
