package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bhavikpatel576/timely/internal/events"
)

// Outcomes of one dead-lettered rule change during a replay pass.
const (
	outcomeRequeued       = "requeued"
	outcomeRetryScheduled = "retry_scheduled"
	outcomeQuarantined    = "quarantined"
)

var (
	dlqRuleChangeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timely",
		Subsystem: "dlq",
		Name:      "rule_changes_total",
		Help:      "Dead-lettered rule-change notifications handled by the replay job, by rule action and outcome.",
	}, []string{"action", "outcome"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "timely",
		Subsystem: "dlq",
		Name:      "rule_changes_backlog",
		Help:      "Rule-change notifications parked in the DLQ, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqRuleChangeCounter, dlqBacklogGauge)
}

// ruleAction reads the rule action (upserted, updated, deleted, classified) from a
// dead-lettered payload. Payloads from other event types report as "unknown".
func ruleAction(entry dlqEntry) string {
	if entry.EventType != events.CategoryRuleChangedType {
		return "unknown"
	}
	var change events.CategoryRuleChanged
	if err := json.Unmarshal(entry.Payload, &change); err != nil || change.Action == "" {
		return "unknown"
	}
	return change.Action
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqRuleChangeCounter.WithLabelValues(ruleAction(entry), outcome).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
                                      COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
                                 FROM outbox_dlq`)
	var pending, quarantined int
	if err := row.Scan(&pending, &quarantined); err != nil {
		return
	}
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(pending))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
