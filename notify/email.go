package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// EmailConfig holds settings for the email channel.
type EmailConfig struct {
	SMTPHost        string
	SMTPPort        int
	Username        string
	Password        string
	FromAddress     string
	// Recipients maps a severity name to its recipient list; the
	// "default" entry is the fallback for severities without their own.
	Recipients      map[string][]string
	SubjectTemplate string
}

// sendMailFunc matches smtp.SendMail, injectable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailHandler sends alerts synchronously over an authenticated SMTP
// transport. Any transport failure is a handler failure.
type EmailHandler struct {
	config   EmailConfig
	sendMail sendMailFunc
	logger   *zap.SugaredLogger
}

// NewEmailHandler creates the email channel.
func NewEmailHandler(config EmailConfig, logger *zap.SugaredLogger) *EmailHandler {
	if config.SubjectTemplate == "" {
		config.SubjectTemplate = "[ARGUS-ALERT-{severity}] {description}"
	}
	return &EmailHandler{config: config, sendMail: smtp.SendMail, logger: logger}
}

// Name identifies the channel.
func (h *EmailHandler) Name() string { return "email" }

// Send renders and sends the alert email. Having no recipients configured
// for the alert's severity (and no default list) is a successful no-op.
func (h *EmailHandler) Send(ctx context.Context, alert *core.Alert) error {
	recipients := h.recipientsFor(alert.Severity)
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := h.renderSubject(alert)
	body := h.renderBody(alert)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", h.config.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if h.config.Username != "" {
		auth = smtp.PlainAuth("", h.config.Username, h.config.Password, h.config.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", h.config.SMTPHost, h.config.SMTPPort)
	if err := h.sendMail(addr, auth, h.config.FromAddress, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	h.logger.Infof("Sent email notification for alert %s to %d recipients", alert.AlertID, len(recipients))
	return nil
}

// recipientsFor selects the recipient list for a severity, falling back to
// the default list.
func (h *EmailHandler) recipientsFor(severity core.Severity) []string {
	if recipients, ok := h.config.Recipients[string(severity)]; ok {
		return recipients
	}
	return h.config.Recipients["default"]
}

// renderSubject expands the subject template's placeholders.
func (h *EmailHandler) renderSubject(alert *core.Alert) string {
	return strings.NewReplacer(
		"{severity}", string(alert.Severity),
		"{description}", alert.Description,
		"{rule_name}", alert.RuleName,
	).Replace(h.config.SubjectTemplate)
}

// renderBody builds the plaintext email body: alert details, context, and
// the raw record.
func (h *EmailHandler) renderBody(alert *core.Alert) string {
	timestamp := alert.Timestamp
	if ts, err := time.Parse(time.RFC3339, alert.Timestamp); err == nil {
		timestamp = ts.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	var b strings.Builder
	b.WriteString("Argus Agent Telemetry Security Alert\n\n")
	b.WriteString("Alert Details:\n")
	fmt.Fprintf(&b, "  ID: %s\n", alert.AlertID)
	fmt.Fprintf(&b, "  Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "  Rule: %s\n", alert.RuleName)
	fmt.Fprintf(&b, "  Description: %s\n", alert.Description)
	fmt.Fprintf(&b, "  Category: %s\n", alert.Category)
	fmt.Fprintf(&b, "  Timestamp: %s\n", timestamp)
	fmt.Fprintf(&b, "  Session ID: %s\n", alert.SessionID)

	b.WriteString("\nContext Information:\n")
	for key, value := range alert.Context {
		fmt.Fprintf(&b, "  %s: %s\n", key, value)
	}

	raw, err := json.MarshalIndent(alert.RawRecord, "", "  ")
	if err == nil {
		b.WriteString("\nRaw Log Record:\n")
		b.Write(raw)
		b.WriteString("\n")
	}

	b.WriteString("\n--\nArgus Agent Telemetry Monitor\n")
	return b.String()
}
