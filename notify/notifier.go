// Package notify fans alerts out to the configured notification channels.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"
)

// Handler is a single notification channel. Send delivers one alert and
// returns an error on delivery failure; handlers must respect ctx
// cancellation so a hung transport cannot stall the dispatcher.
type Handler interface {
	Name() string
	Send(ctx context.Context, alert *core.Alert) error
}

// BestEffortHandler marks channels whose failures never count against the
// overall dispatch outcome.
type BestEffortHandler interface {
	Handler
	BestEffort() bool
}

// Dispatcher delivers each alert to every registered channel. Channels are
// independent failure domains: each runs under its own timeout and circuit
// breaker, and one channel's failure never propagates to another.
type Dispatcher struct {
	handlers       []Handler
	breakers       map[string]*core.Breaker
	handlerTimeout time.Duration
	logger         *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher over the given handlers.
func NewDispatcher(handlers []Handler, handlerTimeout time.Duration, clock core.Clock, logger *zap.SugaredLogger) *Dispatcher {
	if handlerTimeout <= 0 {
		handlerTimeout = 30 * time.Second
	}

	breakers := make(map[string]*core.Breaker, len(handlers))
	for _, h := range handlers {
		breakers[h.Name()] = core.NewBreaker(core.DefaultBreakerConfig(), clock)
	}

	logger.Infof("Initialized %d notification handlers", len(handlers))
	return &Dispatcher{
		handlers:       handlers,
		breakers:       breakers,
		handlerTimeout: handlerTimeout,
		logger:         logger,
	}
}

// HandlerCount returns the number of registered channels.
func (d *Dispatcher) HandlerCount() int {
	return len(d.handlers)
}

// Send delivers the alert on every channel concurrently and reports whether
// at least one counted channel succeeded. Some-but-not-all success is
// recorded as a partial failure but still counts as overall success. An
// alert is delivered to each channel at most once per call.
func (d *Dispatcher) Send(ctx context.Context, alert *core.Alert) bool {
	type outcome struct {
		bestEffort bool
		ok         bool
	}

	results := make([]outcome, len(d.handlers))
	g, gctx := errgroup.WithContext(ctx)

	for i, handler := range d.handlers {
		i, handler := i, handler
		g.Go(func() error {
			defer goroutine.Recover("notify-"+handler.Name(), d.logger)

			be, isBE := handler.(BestEffortHandler)
			results[i].bestEffort = isBE && be.BestEffort()
			results[i].ok = d.deliver(gctx, handler, alert)
			return nil
		})
	}
	_ = g.Wait()

	succeeded, counted := 0, 0
	for _, r := range results {
		if r.bestEffort {
			continue
		}
		counted++
		if r.ok {
			succeeded++
		}
	}

	if counted == 0 {
		// Only best-effort channels configured; nothing can fail.
		return true
	}
	if succeeded == 0 {
		d.logger.Errorf("All notification handlers failed for alert %s", alert.AlertID)
		return false
	}
	if succeeded < counted {
		d.logger.Warnf("Some notification handlers failed for alert %s (%d/%d succeeded)",
			alert.AlertID, succeeded, counted)
		metrics.PartialDeliveries.Inc()
	}
	return true
}

// deliver runs one handler under its timeout and circuit breaker.
func (d *Dispatcher) deliver(ctx context.Context, handler Handler, alert *core.Alert) bool {
	breaker := d.breakers[handler.Name()]
	if err := breaker.Allow(); err != nil {
		d.logger.Warnf("Circuit breaker open for channel %s, skipping alert %s", handler.Name(), alert.AlertID)
		metrics.NotificationsSent.WithLabelValues(handler.Name(), "skipped").Inc()
		return false
	}

	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	if err := handler.Send(hctx, alert); err != nil {
		breaker.RecordFailure()
		d.logger.Errorf("Channel %s failed for alert %s: %v", handler.Name(), alert.AlertID, err)
		metrics.NotificationsSent.WithLabelValues(handler.Name(), "failure").Inc()
		return false
	}

	breaker.RecordSuccess()
	metrics.NotificationsSent.WithLabelValues(handler.Name(), "success").Inc()
	return true
}
