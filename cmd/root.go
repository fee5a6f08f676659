// Package cmd provides the command-line interface for the Argus monitor.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"argus/bootstrap"
	"argus/config"
	"argus/detect"
	"argus/source"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	configFile string
	outputJSON bool
	noColor    bool
)

const checkTimeout = 30 * time.Second

// NewRootCmd builds the argus command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "argus",
		Short: "Security monitor for agent activity logs",
		Long: `Argus polls an agent activity log source, evaluates detection rules and
behavioral baselines against each record, and dispatches deduplicated
security alerts over the configured notification channels.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newOnceCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newAlertsCmd())
	rootCmd.AddCommand(newStatusCmd())

	return rootCmd
}

// newRunCmd creates the 'run' subcommand: continuous monitoring.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run continuous monitoring",
		Long:  "Poll the log source on the configured interval until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, sugar, err := bootstrap.InitLogger()
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			defer logger.Sync()

			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.NewApp(ctx, cfg, sugar)
			if err != nil {
				return err
			}

			app.Run(ctx)
			return nil
		},
	}
}

// newOnceCmd creates the 'once' subcommand: a single poll cycle.
func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single monitoring cycle",
		Long:  "Execute one poll-evaluate-dispatch cycle and exit. Exits non-zero when the cycle is skipped or fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, sugar, err := bootstrap.InitLogger()
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			defer logger.Sync()

			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.NewApp(ctx, cfg, sugar)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Orchestrator.RunOnce(ctx); err != nil {
				return err
			}

			successColor.Printf("Cycle complete, %d alerts sent\n", app.Orchestrator.AlertsSent())
			return nil
		},
	}
}

// enabledChannels lists the notification channels switched on in cfg.
func enabledChannels(cfg *config.Config) []string {
	var channels []string
	if cfg.Notifications.Console.Enabled {
		channels = append(channels, "console")
	}
	if cfg.Notifications.LogFile.Enabled {
		channels = append(channels, "logfile")
	}
	if cfg.Notifications.Email.Enabled {
		channels = append(channels, "email")
	}
	if cfg.Notifications.Webhook.Enabled {
		channels = append(channels, "webhook")
	}
	if cfg.Notifications.Annotation.Enabled {
		channels = append(channels, "annotation")
	}
	return channels
}

// newCheckCmd creates the 'check' subcommand: validate configuration and
// connectivity without sending anything.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, rules and source connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			sugar := zap.NewNop().Sugar()

			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()

			headerColor.Println("Configuration")
			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				errorColor.Printf("  config: %v\n", err)
				return err
			}
			successColor.Println("  config: ok")

			headerColor.Println("Detection rules")
			rules, err := detect.LoadRules(cfg, cfg.Settings.RegexTimeout, sugar)
			if err != nil {
				errorColor.Printf("  rules: %v\n", err)
				return err
			}
			for _, r := range rules {
				kind := "pattern"
				if r.Behavioral() {
					kind = "behavioral"
				}
				successColor.Printf("  %s: ok (%s, %s)\n", r.Name, kind, r.Severity)
			}
			if len(rules) == 0 {
				warningColor.Println("  no enabled rules")
			}

			headerColor.Println("Notification channels")
			channels := enabledChannels(cfg)
			if len(channels) == 0 {
				errorColor.Println("  no channels enabled")
				return fmt.Errorf("no notification channels enabled")
			}
			for _, name := range channels {
				successColor.Printf("  %s: enabled\n", name)
			}

			headerColor.Println("Log source")
			src := source.NewLokiClient(cfg.Source.URL, cfg.Source.Query, cfg.Source.Timeout, sugar)
			if src.Healthy(ctx) {
				successColor.Printf("  %s: reachable\n", cfg.Source.URL)
			} else {
				errorColor.Printf("  %s: unreachable\n", cfg.Source.URL)
				return fmt.Errorf("log source %s is unreachable", cfg.Source.URL)
			}

			return nil
		},
	}
}
