// Package dedup suppresses repeat alerts with a per-key sliding window.
package dedup

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
)

// Config holds deduplication settings.
type Config struct {
	Enabled        bool
	Window         time.Duration
	KeyFields      []string
	MaxOccurrences int
}

// DefaultConfig returns the stock deduplication settings: at most 3 alerts
// per rule_name|session_id key per 5 minutes.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Window:         5 * time.Minute,
		KeyFields:      []string{"rule_name", "session_id"},
		MaxOccurrences: 3,
	}
}

// Deduplicator decides whether an alert is within its key's rolling budget.
// It is a sliding-window rate limiter per key, not an exact-duplicate
// filter: structurally identical alerts share a budget but are never merged.
type Deduplicator struct {
	config Config
	store  Store
	clock  core.Clock
	logger *zap.SugaredLogger
}

// New creates a Deduplicator over the given history store.
func New(config Config, store Store, clock core.Clock, logger *zap.SugaredLogger) *Deduplicator {
	if clock == nil {
		clock = core.RealClock()
	}
	return &Deduplicator{config: config, store: store, clock: clock, logger: logger}
}

// ShouldAlert reports whether the alert fits within its dedup key's budget,
// recording its timestamp when it does. Alerts beyond the budget are
// silently dropped by the caller: not queued, not delayed. Store failures
// fail open so a broken backend degrades dedup, never delivery.
func (d *Deduplicator) ShouldAlert(ctx context.Context, alert *core.Alert) bool {
	if !d.config.Enabled {
		return true
	}

	key := d.Key(alert)
	now := parseAlertTime(alert.Timestamp, d.clock.Now())

	allowed, err := d.store.Allow(ctx, key, now, d.config.Window, d.config.MaxOccurrences)
	if err != nil {
		d.logger.Warnf("Dedup store failure for key %s, allowing alert: %v", key, err)
		metrics.DedupStoreErrors.WithLabelValues(d.store.Name()).Inc()
		return true
	}
	if !allowed {
		metrics.AlertsSuppressed.Inc()
	}
	return allowed
}

// Key builds the alert's dedup key: the ordered concatenation of the
// configured field values, read from the alert's own attributes first and
// its context map second.
func (d *Deduplicator) Key(alert *core.Alert) string {
	values := make([]string, 0, len(d.config.KeyFields))
	for _, field := range d.config.KeyFields {
		if v, ok := attributeValue(alert, field); ok {
			values = append(values, v)
			continue
		}
		if v, ok := alert.Context[field]; ok {
			values = append(values, v)
		}
	}
	return strings.Join(values, "|")
}

// attributeValue maps a key field name onto the alert's fixed attributes.
func attributeValue(alert *core.Alert, field string) (string, bool) {
	switch field {
	case "rule_name":
		return alert.RuleName, true
	case "session_id":
		return alert.SessionID, true
	case "severity":
		return string(alert.Severity), true
	case "category":
		return alert.Category, true
	case "alert_id":
		return alert.AlertID, true
	case "description":
		return alert.Description, true
	}
	return "", false
}

// parseAlertTime parses the alert's RFC3339 timestamp, falling back to now.
func parseAlertTime(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return now
}
