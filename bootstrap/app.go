// Package bootstrap wires configuration into a runnable monitor.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"argus/config"
	"argus/core"
	"argus/dedup"
	"argus/detect"
	"argus/notify"
	"argus/ops"
	"argus/pipeline"
	"argus/source"
	"argus/util/goroutine"
)

// App is the assembled monitor: log source, detectors, deduplicator,
// dispatcher and orchestrator, built once from configuration.
type App struct {
	Config       *config.Config
	Sugar        *zap.SugaredLogger
	Orchestrator *pipeline.Orchestrator

	opsServer  *ops.Server
	redisStore *dedup.RedisStore
}

// NewApp builds the full pipeline from configuration. Construction fails
// fast on anything the monitor cannot run without: unparseable rules, an
// unreachable Redis store, an unwritable alert log.
func NewApp(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*App, error) {
	clock := core.RealClock()

	rules, err := detect.LoadRules(cfg, cfg.Settings.RegexTimeout, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection rules: %w", err)
	}
	engine := detect.NewRuleEngine(rules, clock, sugar)

	analyzer, err := detect.NewBehavioralAnalyzer(detect.BehaviorConfig{
		MaxSessions:         cfg.Behavior.MaxSessions,
		HighFrequencyCount:  cfg.Behavior.HighFrequencyCount,
		HighFrequencyWindow: time.Duration(cfg.Behavior.HighFrequencyWindowMinutes) * time.Minute,
		ScopeViolationLimit: cfg.Behavior.ScopeViolationLimit,
	}, clock, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create behavioral analyzer: %w", err)
	}

	app := &App{Config: cfg, Sugar: sugar}

	store, err := app.initDedupStore(ctx)
	if err != nil {
		return nil, err
	}
	deduplicator := dedup.New(dedup.Config{
		Enabled:        cfg.Deduplication.Enabled,
		Window:         time.Duration(cfg.Deduplication.WindowMinutes) * time.Minute,
		KeyFields:      cfg.Deduplication.KeyFields,
		MaxOccurrences: cfg.Deduplication.MaxOccurrences,
	}, store, clock, sugar)

	handlers, err := buildHandlers(cfg, clock, sugar)
	if err != nil {
		return nil, err
	}
	if len(handlers) == 0 {
		return nil, errors.New("no notification channels enabled")
	}
	dispatcher := notify.NewDispatcher(handlers, cfg.Notifications.HandlerTimeout, clock, sugar)

	src := source.NewLokiClient(cfg.Source.URL, cfg.Source.Query, cfg.Source.Timeout, sugar)

	app.Orchestrator = pipeline.New(pipeline.Config{
		PollInterval:         cfg.Settings.PollInterval,
		MaxConsecutiveErrors: cfg.Settings.MaxConsecutiveErrors,
		Lookback:             cfg.Settings.Lookback,
		QueryLimit:           cfg.Source.Limit,
	}, src, engine, analyzer, deduplicator, dispatcher, clock, sugar)

	if cfg.Ops.Enabled {
		app.opsServer = ops.NewServer(app.Orchestrator, sugar)
	}

	sugar.Infow("Monitor assembled",
		"rules", engine.RuleCount(),
		"channels", len(handlers),
		"dedup_enabled", cfg.Deduplication.Enabled)

	return app, nil
}

// Run blocks until ctx is cancelled, then tears everything down.
func (a *App) Run(ctx context.Context) {
	if a.opsServer != nil {
		go func() {
			defer goroutine.Recover("ops-server", a.Sugar)
			if err := a.opsServer.Start(a.Config.Ops.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Sugar.Errorf("Ops server failed: %v", err)
			}
		}()
	}

	a.Orchestrator.Run(ctx)
	a.Close()
}

// Close releases the app's external connections.
func (a *App) Close() {
	if a.opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.opsServer.Stop(shutdownCtx); err != nil {
			a.Sugar.Warnf("Ops server shutdown: %v", err)
		}
		cancel()
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.Sugar.Warnf("Redis close: %v", err)
		}
	}
}

func (a *App) initDedupStore(ctx context.Context) (dedup.Store, error) {
	cfg := a.Config
	if cfg.Deduplication.Store == "redis" {
		store, err := dedup.NewRedisStore(ctx, dedup.RedisOptions{
			Addr:     cfg.Deduplication.Redis.Addr,
			Password: cfg.Deduplication.Redis.Password,
			DB:       cfg.Deduplication.Redis.DB,
			PoolSize: cfg.Deduplication.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis dedup store: %w", err)
		}
		a.redisStore = store
		a.Sugar.Infow("Using redis dedup store", "addr", cfg.Deduplication.Redis.Addr)
		return store, nil
	}

	store, err := dedup.NewMemoryStore(cfg.Deduplication.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to init memory dedup store: %w", err)
	}
	return store, nil
}

func buildHandlers(cfg *config.Config, clock core.Clock, sugar *zap.SugaredLogger) ([]notify.Handler, error) {
	var handlers []notify.Handler
	n := cfg.Notifications

	if n.Console.Enabled {
		handlers = append(handlers, notify.NewConsoleHandler(notify.ConsoleConfig{
			MinSeverity: core.ParseSeverity(n.Console.MinSeverity),
			Format:      n.Console.Format,
			Colors:      n.Console.Colors,
		}))
	}
	if n.LogFile.Enabled {
		h, err := notify.NewLogFileHandler(notify.LogFileConfig{
			Path:      n.LogFile.Path,
			MaxSizeMB: n.LogFile.MaxSizeMB,
			KeepFiles: n.LogFile.KeepFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init alert log channel: %w", err)
		}
		handlers = append(handlers, h)
	}
	if n.Email.Enabled {
		handlers = append(handlers, notify.NewEmailHandler(notify.EmailConfig{
			SMTPHost:        n.Email.SMTPHost,
			SMTPPort:        n.Email.SMTPPort,
			Username:        n.Email.Username,
			Password:        n.Email.Password,
			FromAddress:     n.Email.FromAddress,
			Recipients:      n.Email.Recipients,
			SubjectTemplate: n.Email.SubjectTemplate,
		}, sugar))
	}
	if n.Webhook.Enabled {
		handlers = append(handlers, notify.NewWebhookHandler(notify.WebhookConfig{
			URL:             n.Webhook.URL,
			Method:          n.Webhook.Method,
			Headers:         n.Webhook.Headers,
			Timeout:         n.Webhook.Timeout,
			RetryAttempts:   n.Webhook.RetryAttempts,
			PayloadTemplate: n.Webhook.PayloadTemplate,
		}, clock, sugar))
	}
	if n.Annotation.Enabled {
		handlers = append(handlers, notify.NewAnnotationHandler(notify.AnnotationConfig{
			URL:          n.Annotation.URL,
			APIKey:       n.Annotation.APIKey,
			DashboardUID: n.Annotation.DashboardUID,
			Tags:         n.Annotation.Tags,
		}, sugar))
	}

	return handlers, nil
}
