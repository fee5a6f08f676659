// Package config loads and validates the Argus configuration surface.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"argus/core"
)

// RuleConfig is the configuration shape of a single named detection rule.
type RuleConfig struct {
	Enabled       bool                  `mapstructure:"enabled" yaml:"enabled"`
	Severity      string                `mapstructure:"severity" yaml:"severity"`
	Pattern       string                `mapstructure:"pattern" yaml:"pattern"`
	Description   string                `mapstructure:"description" yaml:"description"`
	Category      string                `mapstructure:"category" yaml:"category"`
	ContextFields []string              `mapstructure:"context_fields" yaml:"context_fields"`
	Threshold     *core.ThresholdConfig `mapstructure:"threshold" yaml:"threshold,omitempty"`
}

// Config holds all configuration for the Argus monitor.
type Config struct {
	Settings struct {
		PollInterval         time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
		MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" validate:"gt=0"`
		Lookback             time.Duration `mapstructure:"lookback"`
		RegexTimeout         time.Duration `mapstructure:"regex_timeout" validate:"gt=0"`
	} `mapstructure:"settings"`

	Source struct {
		URL     string        `mapstructure:"url" validate:"required,url"`
		Query   string        `mapstructure:"query"`
		Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
		Limit   int           `mapstructure:"limit" validate:"gt=0"`
	} `mapstructure:"source"`

	// Rules holds inline rule definitions keyed by rule name. RulesFile
	// optionally points at a YAML file with additional definitions; file
	// rules are merged under the inline ones, inline winning on conflict.
	Rules     map[string]RuleConfig `mapstructure:"rules"`
	RulesFile string                `mapstructure:"rules_file"`

	Deduplication struct {
		Enabled        bool     `mapstructure:"enabled"`
		WindowMinutes  int      `mapstructure:"window_minutes" validate:"gt=0"`
		KeyFields      []string `mapstructure:"key_fields" validate:"min=1"`
		MaxOccurrences int      `mapstructure:"max_occurrences" validate:"gt=0"`
		MaxKeys        int      `mapstructure:"max_keys" validate:"gt=0"`
		Store          string   `mapstructure:"store" validate:"oneof=memory redis"`
		Redis          struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			PoolSize int    `mapstructure:"pool_size"`
		} `mapstructure:"redis"`
	} `mapstructure:"deduplication"`

	Behavior struct {
		MaxSessions                int `mapstructure:"max_sessions" validate:"gt=0"`
		HighFrequencyCount         int `mapstructure:"high_frequency_count" validate:"gt=0"`
		HighFrequencyWindowMinutes int `mapstructure:"high_frequency_window_minutes" validate:"gt=0"`
		ScopeViolationLimit        int `mapstructure:"scope_violation_limit" validate:"gt=0"`
	} `mapstructure:"behavior"`

	Notifications struct {
		Console struct {
			Enabled     bool   `mapstructure:"enabled"`
			MinSeverity string `mapstructure:"min_severity"`
			Format      string `mapstructure:"format" validate:"oneof=text json"`
			Colors      bool   `mapstructure:"colors"`
		} `mapstructure:"console"`

		LogFile struct {
			Enabled   bool   `mapstructure:"enabled"`
			Path      string `mapstructure:"path"`
			MaxSizeMB int    `mapstructure:"max_size_mb" validate:"gt=0"`
			KeepFiles int    `mapstructure:"keep_files" validate:"gt=0"`
		} `mapstructure:"logfile"`

		Email struct {
			Enabled         bool                `mapstructure:"enabled"`
			SMTPHost        string              `mapstructure:"smtp_host"`
			SMTPPort        int                 `mapstructure:"smtp_port"`
			Username        string              `mapstructure:"username"`
			Password        string              `mapstructure:"password"`
			FromAddress     string              `mapstructure:"from_address"`
			Recipients      map[string][]string `mapstructure:"recipients"`
			SubjectTemplate string              `mapstructure:"subject_template"`
		} `mapstructure:"email"`

		Webhook struct {
			Enabled         bool              `mapstructure:"enabled"`
			URL             string            `mapstructure:"url"`
			Method          string            `mapstructure:"method"`
			Headers         map[string]string `mapstructure:"headers"`
			Timeout         time.Duration     `mapstructure:"timeout"`
			RetryAttempts   int               `mapstructure:"retry_attempts"`
			PayloadTemplate string            `mapstructure:"payload_template"`
		} `mapstructure:"webhook"`

		Annotation struct {
			Enabled      bool     `mapstructure:"enabled"`
			URL          string   `mapstructure:"url"`
			APIKey       string   `mapstructure:"api_key"`
			DashboardUID string   `mapstructure:"dashboard_uid"`
			Tags         []string `mapstructure:"tags"`
		} `mapstructure:"annotation"`

		HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"gt=0"`
	} `mapstructure:"notifications"`

	Ops struct {
		Enabled bool   `mapstructure:"enabled"`
		Listen  string `mapstructure:"listen"`
	} `mapstructure:"ops"`
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("settings.poll_interval", 5*time.Second)
	viper.SetDefault("settings.max_consecutive_errors", 5)
	viper.SetDefault("settings.lookback", time.Hour)
	viper.SetDefault("settings.regex_timeout", 500*time.Millisecond)

	viper.SetDefault("source.url", "http://localhost:3100")
	viper.SetDefault("source.query", `{service="agent-telemetry"}`)
	viper.SetDefault("source.timeout", 10*time.Second)
	viper.SetDefault("source.limit", 1000)

	viper.SetDefault("deduplication.enabled", true)
	viper.SetDefault("deduplication.window_minutes", 5)
	viper.SetDefault("deduplication.key_fields", []string{"rule_name", "session_id"})
	viper.SetDefault("deduplication.max_occurrences", 3)
	viper.SetDefault("deduplication.max_keys", 10000)
	viper.SetDefault("deduplication.store", "memory")
	viper.SetDefault("deduplication.redis.addr", "localhost:6379")
	viper.SetDefault("deduplication.redis.db", 0)
	viper.SetDefault("deduplication.redis.pool_size", 10)

	viper.SetDefault("behavior.max_sessions", 10000)
	viper.SetDefault("behavior.high_frequency_count", 20)
	viper.SetDefault("behavior.high_frequency_window_minutes", 5)
	viper.SetDefault("behavior.scope_violation_limit", 3)

	viper.SetDefault("notifications.console.enabled", true)
	viper.SetDefault("notifications.console.min_severity", "MEDIUM")
	viper.SetDefault("notifications.console.format", "text")
	viper.SetDefault("notifications.console.colors", true)
	viper.SetDefault("notifications.logfile.enabled", true)
	viper.SetDefault("notifications.logfile.path", "data/alerts/security-alerts.log")
	viper.SetDefault("notifications.logfile.max_size_mb", 100)
	viper.SetDefault("notifications.logfile.keep_files", 5)
	viper.SetDefault("notifications.email.enabled", false)
	viper.SetDefault("notifications.email.smtp_port", 587)
	viper.SetDefault("notifications.email.from_address", "argus-alerts@localhost")
	viper.SetDefault("notifications.email.subject_template", "[ARGUS-ALERT-{severity}] {description}")
	viper.SetDefault("notifications.webhook.enabled", false)
	viper.SetDefault("notifications.webhook.method", "POST")
	viper.SetDefault("notifications.webhook.timeout", 10*time.Second)
	viper.SetDefault("notifications.webhook.retry_attempts", 3)
	viper.SetDefault("notifications.annotation.enabled", false)
	viper.SetDefault("notifications.annotation.url", "http://localhost:3000")
	viper.SetDefault("notifications.annotation.tags", []string{"security", "alert"})
	viper.SetDefault("notifications.handler_timeout", 30*time.Second)

	viper.SetDefault("ops.enabled", false)
	viper.SetDefault("ops.listen", "127.0.0.1:9464")
}

// loadFromEnv sets up environment variable overrides (ARGUS_ prefix).
func loadFromEnv() {
	viper.SetEnvPrefix("ARGUS")
	viper.AutomaticEnv()

	_ = viper.BindEnv("source.url", "ARGUS_SOURCE_URL")
	_ = viper.BindEnv("rules_file", "ARGUS_RULES_FILE")
	_ = viper.BindEnv("deduplication.redis.addr", "ARGUS_REDIS_ADDR")
	_ = viper.BindEnv("deduplication.redis.password", "ARGUS_REDIS_PASSWORD")
	_ = viper.BindEnv("notifications.email.password", "ARGUS_SMTP_PASSWORD")
	_ = viper.BindEnv("notifications.annotation.api_key", "ARGUS_ANNOTATION_API_KEY")
}

// LoadConfig loads configuration from the given file (or the default search
// path when path is empty) plus environment variables. A missing explicit
// config file is a startup error; falling back to defaults is only allowed
// when no file was requested.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefaults()
	loadFromEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		viper.SetConfigName("argus")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		// A missing file on the search path is fine, defaults and env
		// vars carry the config.
		_ = viper.ReadInConfig()
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validateConfig runs struct-level validation over the loaded configuration.
func validateConfig(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL == "" {
		return fmt.Errorf("notifications.webhook.url is required when the webhook channel is enabled")
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.SMTPHost == "" {
		return fmt.Errorf("notifications.email.smtp_host is required when the email channel is enabled")
	}
	if sev := cfg.Notifications.Console.MinSeverity; sev != "" && !core.Severity(sev).Valid() {
		return fmt.Errorf("notifications.console.min_severity: unknown severity %q", sev)
	}
	return nil
}
