package detect

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"argus/core"
)

// Behavioral rule names. These match rules configured without a pattern.
const (
	RuleHighFrequency  = "high_frequency_operations"
	RuleScopeViolation = "repeated_scope_violations"

	behavioralCategory = "behavioral_anomaly"
)

// scopeViolationPath is the record field that signals an out-of-scope action.
const scopeViolationPath = "action_details.outside_project_scope"

// BehaviorConfig holds the tunable thresholds for the built-in detectors.
type BehaviorConfig struct {
	// MaxSessions bounds the number of tracked sessions; least recently
	// active sessions are evicted beyond it.
	MaxSessions int
	// HighFrequencyCount is the operation count above which the
	// high-frequency detector fires.
	HighFrequencyCount int
	// HighFrequencyWindow is the sliding window the count applies to.
	HighFrequencyWindow time.Duration
	// ScopeViolationLimit is the cumulative violation count at which the
	// repeated-violation detector starts firing.
	ScopeViolationLimit int
}

// DefaultBehaviorConfig returns the fixed-policy defaults.
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		MaxSessions:         10000,
		HighFrequencyCount:  20,
		HighFrequencyWindow: 5 * time.Minute,
		ScopeViolationLimit: 3,
	}
}

// sessionState tracks per-session behavioral history. Each state carries its
// own mutex so concurrent records from different sessions never contend.
type sessionState struct {
	mu              sync.Mutex
	operations      []time.Time
	scopeViolations int
	startTime       time.Time
}

// BehavioralAnalyzer performs stateful per-session anomaly detection. State
// is bounded by an LRU over session IDs; there is no session-close event, so
// stale sessions age out by eviction rather than explicitly.
type BehavioralAnalyzer struct {
	config   BehaviorConfig
	sessions *lru.Cache[string, *sessionState]
	mu       sync.Mutex // guards cache lookups+inserts, not per-session state
	clock    core.Clock
	logger   *zap.SugaredLogger
}

// NewBehavioralAnalyzer creates an analyzer with the given thresholds.
func NewBehavioralAnalyzer(config BehaviorConfig, clock core.Clock, logger *zap.SugaredLogger) (*BehavioralAnalyzer, error) {
	def := DefaultBehaviorConfig()
	if config.MaxSessions <= 0 {
		config.MaxSessions = def.MaxSessions
	}
	if config.HighFrequencyCount <= 0 {
		config.HighFrequencyCount = def.HighFrequencyCount
	}
	if config.HighFrequencyWindow <= 0 {
		config.HighFrequencyWindow = def.HighFrequencyWindow
	}
	if config.ScopeViolationLimit <= 0 {
		config.ScopeViolationLimit = def.ScopeViolationLimit
	}
	if clock == nil {
		clock = core.RealClock()
	}

	sessions, err := lru.New[string, *sessionState](config.MaxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	return &BehavioralAnalyzer{
		config:   config,
		sessions: sessions,
		clock:    clock,
		logger:   logger,
	}, nil
}

// SessionCount returns the number of currently tracked sessions.
func (a *BehavioralAnalyzer) SessionCount() int {
	return a.sessions.Len()
}

// Analyze folds one record into the session's state and returns any
// behavioral candidate alerts. Detectors fire on every call while their
// condition holds; suppression of the resulting stream is the
// deduplicator's job, not this layer's.
func (a *BehavioralAnalyzer) Analyze(sessionID string, record core.LogRecord) []*core.Alert {
	state := a.session(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	timestamp := record.Timestamp(a.clock.Now())
	if state.startTime.IsZero() {
		state.startTime = timestamp
	}

	state.operations = append(state.operations, timestamp)
	state.trimOperations(timestamp)

	var alerts []*core.Alert

	if alert := a.checkHighFrequency(sessionID, state, timestamp, record); alert != nil {
		alerts = append(alerts, alert)
	}

	if record.Bool(scopeViolationPath) {
		state.scopeViolations++
		if alert := a.checkScopeViolations(sessionID, state, timestamp, record); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

// session returns the state for a session, creating it on first sight.
func (a *BehavioralAnalyzer) session(sessionID string) *sessionState {
	a.mu.Lock()
	defer a.mu.Unlock()

	if state, ok := a.sessions.Get(sessionID); ok {
		return state
	}
	state := &sessionState{}
	a.sessions.Add(sessionID, state)
	return state
}

// trimOperations drops operation timestamps older than one hour. Caller
// holds the state lock.
func (s *sessionState) trimOperations(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := s.operations[:0]
	for _, ts := range s.operations {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.operations = kept
}

// checkHighFrequency emits a MEDIUM alert when the session's operation count
// within the sliding window exceeds the threshold. Caller holds the state
// lock.
func (a *BehavioralAnalyzer) checkHighFrequency(sessionID string, state *sessionState, now time.Time, record core.LogRecord) *core.Alert {
	windowStart := now.Add(-a.config.HighFrequencyWindow)
	recent := 0
	for _, ts := range state.operations {
		if ts.After(windowStart) {
			recent++
		}
	}

	if recent <= a.config.HighFrequencyCount {
		return nil
	}

	minutes := a.config.HighFrequencyWindow.Minutes()
	ts := now.Format(time.RFC3339)
	return &core.Alert{
		AlertID:     core.NewAlertID(RuleHighFrequency, sessionID, ts),
		RuleName:    RuleHighFrequency,
		Severity:    core.SeverityMedium,
		Description: "Unusually high frequency of operations detected",
		Category:    behavioralCategory,
		Timestamp:   ts,
		SessionID:   sessionID,
		Context: map[string]string{
			"operation_count":       strconv.Itoa(recent),
			"time_window":           fmt.Sprintf("%d minutes", int(minutes)),
			"operations_per_minute": strconv.FormatFloat(float64(recent)/minutes, 'f', 1, 64),
		},
		RawRecord: record,
	}
}

// checkScopeViolations emits a HIGH alert on the record that reaches the
// violation limit and on every violating record after it. The counter is
// monotonic for the life of the session state. Caller holds the state lock.
func (a *BehavioralAnalyzer) checkScopeViolations(sessionID string, state *sessionState, now time.Time, record core.LogRecord) *core.Alert {
	if state.scopeViolations < a.config.ScopeViolationLimit {
		return nil
	}

	ts := now.Format(time.RFC3339)
	return &core.Alert{
		AlertID:     core.NewAlertID(RuleScopeViolation, sessionID, ts),
		RuleName:    RuleScopeViolation,
		Severity:    core.SeverityHigh,
		Description: "Multiple scope violations in session",
		Category:    behavioralCategory,
		Timestamp:   ts,
		SessionID:   sessionID,
		Context: map[string]string{
			"violation_count":  strconv.Itoa(state.scopeViolations),
			"session_duration": now.Sub(state.startTime).String(),
		},
		RawRecord: record,
	}
}
