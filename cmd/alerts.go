package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"argus/bootstrap"
	"argus/core"
	"argus/detect"
	"argus/report"
	"argus/source"
)

// newAlertsCmd creates the 'alerts' subcommand group for querying the alert
// log written by the log file channel.
func newAlertsCmd() *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Query the alert log",
	}
	alertsCmd.AddCommand(newAlertsShowCmd())
	alertsCmd.AddCommand(newAlertsStatsCmd())
	return alertsCmd
}

func newAlertsShowCmd() *cobra.Command {
	var limit int
	var severityFlag string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recent alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := alertLogReader()
			if err != nil {
				return err
			}

			var severity core.Severity
			if severityFlag != "" {
				severity = core.Severity(strings.ToUpper(severityFlag))
				if !severity.Valid() {
					return fmt.Errorf("unknown severity %q", severityFlag)
				}
			}

			alerts, err := reader.Recent(limit, severity)
			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(alerts)
			}
			renderAlerts(alerts)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum alerts to show")
	cmd.Flags().StringVar(&severityFlag, "severity", "", "Filter by severity (LOW, MEDIUM, HIGH, CRITICAL)")
	return cmd
}

func newAlertsStatsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize alert volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := alertLogReader()
			if err != nil {
				return err
			}

			stats, err := reader.Stats(days)
			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(stats)
			}
			renderStats(stats)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Trailing window in days")
	return cmd
}

// newStatusCmd creates the 'status' subcommand: a one-shot health summary.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitor health and today's alert volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			sugar := zap.NewNop().Sugar()

			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()

			src := source.NewLokiClient(cfg.Source.URL, cfg.Source.Query, cfg.Source.Timeout, sugar)
			sourceHealthy := src.Healthy(ctx)

			rules, err := detect.LoadRules(cfg, cfg.Settings.RegexTimeout, sugar)
			if err != nil {
				return err
			}

			var logSize int64
			if fi, err := os.Stat(cfg.Notifications.LogFile.Path); err == nil {
				logSize = fi.Size()
			}

			reader := report.NewReader(cfg.Notifications.LogFile.Path, nil)
			stats, err := reader.Stats(1)
			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(map[string]interface{}{
					"source_url":     cfg.Source.URL,
					"source_healthy": sourceHealthy,
					"rules":          len(rules),
					"channels":       enabledChannels(cfg),
					"log_path":       cfg.Notifications.LogFile.Path,
					"log_size_bytes": logSize,
					"alerts_today":   stats.Total,
					"by_severity":    stats.BySeverity,
				})
			}

			headerColor.Println("Argus status")
			if sourceHealthy {
				successColor.Printf("  source %s: healthy\n", cfg.Source.URL)
			} else {
				errorColor.Printf("  source %s: unreachable\n", cfg.Source.URL)
			}
			infoColor.Printf("  rules: %d enabled\n", len(rules))
			infoColor.Printf("  channels: %s\n", strings.Join(enabledChannels(cfg), ", "))
			infoColor.Printf("  alert log: %s (%d bytes)\n", cfg.Notifications.LogFile.Path, logSize)
			infoColor.Printf("  alerts today: %d\n", stats.Total)
			for _, sev := range []string{"critical", "high", "medium", "low"} {
				if n := stats.BySeverity[sev]; n > 0 {
					fmt.Printf("    %-8s %d\n", sev, n)
				}
			}
			return nil
		},
	}
}

func alertLogReader() (*report.Reader, error) {
	cfg, err := bootstrap.InitConfig(configFile, zap.NewNop().Sugar())
	if err != nil {
		return nil, err
	}
	return report.NewReader(cfg.Notifications.LogFile.Path, nil), nil
}

func outputAsJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderAlerts(alerts []core.Alert) {
	if len(alerts) == 0 {
		infoColor.Println("No alerts")
		return
	}
	for _, a := range alerts {
		c := severityColor(a.Severity)
		c.Printf("[%s] %s\n", a.Severity, a.Description)
		fmt.Printf("  id=%s rule=%s session=%s time=%s\n",
			a.AlertID, a.RuleName, a.SessionID, a.Timestamp)
	}
}

func renderStats(stats *report.Statistics) {
	headerColor.Printf("Alerts in the last %d day(s): %d\n", stats.Days, stats.Total)

	if len(stats.BySeverity) > 0 {
		infoColor.Println("By severity:")
		for _, sev := range []string{"critical", "high", "medium", "low"} {
			if n := stats.BySeverity[sev]; n > 0 {
				fmt.Printf("  %-8s %d\n", sev, n)
			}
		}
	}
	if len(stats.ByRule) > 0 {
		infoColor.Println("By rule:")
		names := make([]string, 0, len(stats.ByRule))
		for name := range stats.ByRule {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return stats.ByRule[names[i]] > stats.ByRule[names[j]]
		})
		for _, name := range names {
			fmt.Printf("  %-32s %d\n", name, stats.ByRule[name])
		}
	}
	if len(stats.ByCategory) > 0 {
		infoColor.Println("By category:")
		for category, n := range stats.ByCategory {
			fmt.Printf("  %-32s %d\n", category, n)
		}
	}
	if len(stats.Daily) > 0 {
		infoColor.Println("Daily:")
		for _, d := range stats.Daily {
			fmt.Printf("  %s  %d\n", d.Date, d.Count)
		}
	}
}

func severityColor(sev core.Severity) *color.Color {
	switch sev {
	case core.SeverityCritical:
		return errorColor
	case core.SeverityHigh:
		return warningColor
	case core.SeverityMedium:
		return infoColor
	default:
		return successColor
	}
}
