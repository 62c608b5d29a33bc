// Package events defines the message payloads exchanged over Kafka.
package events

import "time"

// ActivityCaptured is emitted by the capture process when an activity session ends.
type ActivityCaptured struct {
	EventID   string    `json:"event_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	App       *string   `json:"app,omitempty"`
	Title     *string   `json:"title,omitempty"`
	URL       *string   `json:"url,omitempty"`
	URLDomain *string   `json:"url_domain,omitempty"`
	Duration  float64   `json:"duration"`
	IsAFK     bool      `json:"is_afk"`
}

// CategoryRuleChanged announces a committed classification change so downstream
// consumers can refresh derived views.
type CategoryRuleChanged struct {
	Action     string    `json:"action"`
	RuleID     int64     `json:"rule_id,omitempty"`
	Field      string    `json:"field,omitempty"`
	Pattern    string    `json:"pattern,omitempty"`
	CategoryID *int64    `json:"category_id,omitempty"`
	Affected   int64     `json:"affected"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	// CategoryRuleChangedType is the outbox event type for CategoryRuleChanged.
	CategoryRuleChangedType = "category_rule.changed"
	// ActivityCapturedType labels ingested capture messages.
	ActivityCapturedType = "activity.captured"
)
