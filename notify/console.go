package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"argus/core"
)

// ConsoleConfig holds settings for the console channel.
type ConsoleConfig struct {
	MinSeverity core.Severity
	Format      string // "text" or "json"
	Colors      bool
}

// ConsoleHandler writes alerts to the terminal, filtered by a minimum
// severity so LOW chatter can be kept off the operator's screen.
type ConsoleHandler struct {
	config ConsoleConfig
	out    io.Writer
	mu     sync.Mutex
}

var severityColors = map[core.Severity]*color.Color{
	core.SeverityCritical: color.New(color.FgRed, color.Bold),
	core.SeverityHigh:     color.New(color.FgYellow),
	core.SeverityMedium:   color.New(color.FgBlue),
	core.SeverityLow:      color.New(color.FgGreen),
}

// NewConsoleHandler creates a console channel writing to stdout.
func NewConsoleHandler(config ConsoleConfig) *ConsoleHandler {
	return NewConsoleHandlerWithWriter(config, os.Stdout)
}

// NewConsoleHandlerWithWriter creates a console channel with an explicit
// writer, used by tests.
func NewConsoleHandlerWithWriter(config ConsoleConfig, out io.Writer) *ConsoleHandler {
	if config.MinSeverity == "" {
		config.MinSeverity = core.SeverityMedium
	}
	return &ConsoleHandler{config: config, out: out}
}

// Name identifies the channel.
func (h *ConsoleHandler) Name() string { return "console" }

// Send writes the alert to the console. Alerts below the severity threshold
// are filtered, which is a successful no-op rather than a failure.
func (h *ConsoleHandler) Send(_ context.Context, alert *core.Alert) error {
	if alert.Severity.Rank() < h.config.MinSeverity.Rank() {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.Format == "json" {
		data, err := json.MarshalIndent(alert, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		_, err = fmt.Fprintln(h.out, string(data))
		return err
	}

	timestamp := alert.Timestamp
	if ts, err := time.Parse(time.RFC3339, alert.Timestamp); err == nil {
		timestamp = ts.Format("2006-01-02 15:04:05")
	}

	header := fmt.Sprintf("[%s] %s", alert.Severity, timestamp)
	if h.config.Colors {
		if c, ok := severityColors[alert.Severity]; ok {
			header = c.Sprint(header)
		}
	}

	fmt.Fprintln(h.out, header)
	fmt.Fprintf(h.out, "Rule: %s\n", alert.RuleName)
	fmt.Fprintf(h.out, "Description: %s\n", alert.Description)
	fmt.Fprintf(h.out, "Session: %s\n", alert.SessionID)
	fmt.Fprintf(h.out, "Category: %s\n", alert.Category)
	if len(alert.Context) > 0 {
		fmt.Fprintln(h.out, "Context:")
		for key, value := range alert.Context {
			fmt.Fprintf(h.out, "  %s: %s\n", key, value)
		}
	}
	_, err := fmt.Fprintln(h.out, "------------------------------------------------------------")
	return err
}
