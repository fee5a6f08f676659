// Package pipeline drives the poll-evaluate-dispatch cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/dedup"
	"argus/detect"
	"argus/metrics"
	"argus/notify"
	"argus/source"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateStopped  State = "stopped"
)

// ErrUnhealthy is returned by RunOnce when the health gate refuses a cycle:
// the log source is unreachable or the consecutive-error ceiling was hit.
// It is non-fatal; the cycle is skipped and the time cursor is unchanged.
var ErrUnhealthy = errors.New("pipeline unhealthy, skipping cycle")

// Config holds orchestrator tuning.
type Config struct {
	PollInterval         time.Duration
	MaxConsecutiveErrors int
	// Lookback is how far behind now the cursor starts on the first cycle.
	Lookback   time.Duration
	QueryLimit int
}

// Orchestrator glues the log source, detectors, deduplicator and dispatcher
// into one polling pipeline. Exactly one orchestrator instance runs per
// configuration; a second poller would race on the time cursor and
// double-process records.
type Orchestrator struct {
	config     Config
	source     source.LogSource
	engine     *detect.RuleEngine
	analyzer   *detect.BehavioralAnalyzer
	dedup      *dedup.Deduplicator
	dispatcher *notify.Dispatcher
	clock      core.Clock
	logger     *zap.SugaredLogger

	mu                sync.Mutex
	state             State
	lastCheckTime     time.Time
	consecutiveErrors int
	alertsSent        int
}

// New creates an orchestrator. The time cursor starts Lookback behind now.
func New(config Config, src source.LogSource, engine *detect.RuleEngine, analyzer *detect.BehavioralAnalyzer,
	dd *dedup.Deduplicator, dispatcher *notify.Dispatcher, clock core.Clock, logger *zap.SugaredLogger) *Orchestrator {
	if clock == nil {
		clock = core.RealClock()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.MaxConsecutiveErrors <= 0 {
		config.MaxConsecutiveErrors = 5
	}
	if config.Lookback <= 0 {
		config.Lookback = time.Hour
	}
	if config.QueryLimit <= 0 {
		config.QueryLimit = 1000
	}

	return &Orchestrator{
		config:        config,
		source:        src,
		engine:        engine,
		analyzer:      analyzer,
		dedup:         dd,
		dispatcher:    dispatcher,
		clock:         clock,
		logger:        logger,
		state:         StateIdle,
		lastCheckTime: clock.Now().Add(-config.Lookback),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastCheckTime returns the time cursor: the end of the last successfully
// processed window.
func (o *Orchestrator) LastCheckTime() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCheckTime
}

// ConsecutiveErrors returns the current error streak.
func (o *Orchestrator) ConsecutiveErrors() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consecutiveErrors
}

// AlertsSent returns the number of alerts delivered during this run.
func (o *Orchestrator) AlertsSent() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.alertsSent
}

// Healthy reports whether the next cycle would pass the health gate.
func (o *Orchestrator) Healthy(ctx context.Context) bool {
	o.mu.Lock()
	errs := o.consecutiveErrors
	o.mu.Unlock()

	if errs >= o.config.MaxConsecutiveErrors {
		o.logger.Errorf("Too many consecutive errors: %d", errs)
		return false
	}
	if !o.source.Healthy(ctx) {
		o.logger.Error("Log source health check failed")
		return false
	}
	return true
}

// RunOnce executes one poll-evaluate-dispatch cycle. On a pull or evaluate
// failure the error counter grows and the cursor stays put, so the same
// window is re-queried next cycle; the deduplicator absorbs the resulting
// duplicate alerts. Delivery failures never fail the cycle.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	started := o.clock.Now()
	defer func() {
		metrics.CycleDuration.Observe(o.clock.Now().Sub(started).Seconds())
	}()

	o.setState(StatePolling)

	if !o.Healthy(ctx) {
		o.setState(StateDegraded)
		metrics.PollCycles.WithLabelValues("unhealthy").Inc()
		return ErrUnhealthy
	}

	o.mu.Lock()
	windowStart := o.lastCheckTime
	o.mu.Unlock()
	windowEnd := o.clock.Now()

	records, err := o.source.Query(ctx, windowStart, windowEnd, o.config.QueryLimit)
	if err != nil {
		o.recordCycleError()
		metrics.PollCycles.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to query log source: %w", err)
	}

	candidates := o.evaluate(records)
	sent := o.dispatch(ctx, candidates)

	o.mu.Lock()
	o.lastCheckTime = windowEnd
	o.consecutiveErrors = 0
	o.alertsSent += sent
	o.state = StateHealthy
	o.mu.Unlock()

	if len(candidates) > 0 {
		o.logger.Infof("Processed %d candidate alerts, sent %d", len(candidates), sent)
	}
	metrics.PollCycles.WithLabelValues("ok").Inc()
	return nil
}

// evaluate runs every record through the rule engine and the behavioral
// analyzer. Records are processed in order so same-session behavioral state
// mutates deterministically.
func (o *Orchestrator) evaluate(records []core.LogRecord) []*core.Alert {
	var candidates []*core.Alert
	for _, record := range records {
		metrics.RecordsProcessed.Inc()

		for _, alert := range o.engine.Evaluate(record) {
			metrics.AlertsGenerated.WithLabelValues(string(alert.Severity), "rule").Inc()
			candidates = append(candidates, alert)
		}
		for _, alert := range o.analyzer.Analyze(record.SessionID(), record) {
			metrics.AlertsGenerated.WithLabelValues(string(alert.Severity), "behavioral").Inc()
			candidates = append(candidates, alert)
		}
	}
	return candidates
}

// dispatch pushes candidates through deduplication and delivers survivors.
func (o *Orchestrator) dispatch(ctx context.Context, candidates []*core.Alert) int {
	sent := 0
	for _, alert := range candidates {
		if !o.dedup.ShouldAlert(ctx, alert) {
			continue
		}
		if o.dispatcher.Send(ctx, alert) {
			sent++
			o.logger.Infow("Alert sent",
				"alert_id", alert.AlertID,
				"rule", alert.RuleName,
				"severity", alert.Severity,
				"session", alert.SessionID)
		} else {
			o.logger.Errorf("Delivery failed on all channels for alert %s", alert.AlertID)
		}
	}
	return sent
}

// Run polls continuously until ctx is cancelled, sleeping the remainder of
// the poll interval between cycles. Cancellation is honored between cycles:
// an in-flight cycle completes rather than aborting mid-delivery.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("Starting continuous monitoring")

	for {
		if ctx.Err() != nil {
			break
		}

		started := o.clock.Now()
		if err := o.RunOnce(ctx); err != nil {
			o.logger.Warnf("Cycle failed, continuing: %v", err)
		}

		elapsed := o.clock.Now().Sub(started)
		o.clock.Sleep(o.config.PollInterval-elapsed, ctx.Done())
	}

	o.setState(StateStopped)
	o.logger.Info("Monitoring stopped")
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) recordCycleError() {
	o.mu.Lock()
	o.consecutiveErrors++
	o.state = StateDegraded
	o.mu.Unlock()
}
