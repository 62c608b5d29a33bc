// Package observability exposes the engine's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ruleMutationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timely",
		Subsystem: "rules",
		Name:      "mutations_total",
		Help:      "Committed rule mutations by action.",
	}, []string{"action"})

	recategorizedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timely",
		Subsystem: "rules",
		Name:      "events_recategorized_total",
		Help:      "Events whose category changed as a result of a rule mutation, by action.",
	}, []string{"action"})

	queryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "timely",
		Subsystem: "reports",
		Name:      "query_duration_seconds",
		Help:      "Time spent answering report queries.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"report"})

	cacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timely",
		Subsystem: "reports",
		Name:      "cache_lookups_total",
		Help:      "Report cache lookups by outcome.",
	}, []string{"outcome"})

	eventsIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timely",
		Subsystem: "ingest",
		Name:      "events_stored_total",
		Help:      "Captured events written to the event store.",
	})

	lastEventGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timely",
		Subsystem: "ingest",
		Name:      "last_event_timestamp_seconds",
		Help:      "Unix timestamp of the most recent captured event stored.",
	})
)

func init() {
	prometheus.MustRegister(ruleMutationCounter, recategorizedCounter, queryDuration, cacheCounter, eventsIngestedCounter, lastEventGauge)
}

// RecordRuleMutation counts a committed mutation and the events it touched.
func RecordRuleMutation(action string, affected int64) {
	ruleMutationCounter.WithLabelValues(action).Inc()
	if affected > 0 {
		recategorizedCounter.WithLabelValues(action).Add(float64(affected))
	}
}

// ObserveQuery records the latency of a report since start.
func ObserveQuery(report string, start time.Time) {
	queryDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheCounter.WithLabelValues(outcome).Inc()
}

// RecordEventsStored advances the ingestion counter and watermark.
func RecordEventsStored(n int64, latest time.Time) {
	if n > 0 {
		eventsIngestedCounter.Add(float64(n))
	}
	if latest.IsZero() {
		return
	}
	lastEventGauge.Set(float64(latest.Unix()))
}
