package domain

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/Bhavikpatel576/timely/internal/observability"
)

// RecordEvents stores captured events. Category assignment is left to the
// classification pass, so every event arrives unassigned. Events dated before
// today land in periods that may already be cached, so the report cache is
// invalidated for them.
func (s *Service) RecordEvents(ctx context.Context, events []Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var earliest, latest time.Time
	for i := range events {
		e := &events[i]
		if e.Timestamp.IsZero() {
			return 0, &ValidationError{Field: "timestamp", Reason: "required"}
		}
		if e.Duration < 0 {
			return 0, &ValidationError{Field: "duration", Reason: "must not be negative"}
		}
		e.Timestamp = e.Timestamp.UTC().Truncate(time.Second)
		e.CategoryID = nil
		if e.URLDomain == nil || *e.URLDomain == "" {
			e.URLDomain = DomainOf(e.URL)
		}
		if e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
		if earliest.IsZero() || e.Timestamp.Before(earliest) {
			earliest = e.Timestamp
		}
	}
	n, err := s.store.AppendEvents(ctx, events)
	if err != nil {
		return 0, storageErr("record events", err)
	}
	observability.RecordEventsStored(n, latest)
	if n > 0 && earliest.Before(s.startOfToday()) {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("report cache invalidation failed", "earliest", earliest, "error", err)
		}
	}
	return n, nil
}

func (s *Service) startOfToday() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// DomainOf extracts the lower-cased host of raw without a leading "www.".
// Returns nil when raw is empty or has no host.
func DomainOf(raw *string) *string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(*raw))
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return &host
}
