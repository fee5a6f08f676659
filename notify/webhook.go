package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// WebhookConfig holds settings for the webhook channel.
type WebhookConfig struct {
	URL             string
	Method          string
	Headers         map[string]string
	Timeout         time.Duration
	RetryAttempts   int
	PayloadTemplate string
}

// WebhookHandler POSTs alerts as JSON, retrying with exponential backoff.
// Any attempt's 2xx response is success; non-2xx responses and transport
// errors keep retrying until attempts exhaust.
type WebhookHandler struct {
	config WebhookConfig
	client *http.Client
	clock  core.Clock
	logger *zap.SugaredLogger
}

// NewWebhookHandler creates the webhook channel.
func NewWebhookHandler(config WebhookConfig, clock core.Clock, logger *zap.SugaredLogger) *WebhookHandler {
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if clock == nil {
		clock = core.RealClock()
	}
	return &WebhookHandler{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		clock:  clock,
		logger: logger,
	}
}

// Name identifies the channel.
func (h *WebhookHandler) Name() string { return "webhook" }

// Send delivers the alert payload, backing off 2^attempt seconds between
// failed attempts.
func (h *WebhookHandler) Send(ctx context.Context, alert *core.Alert) error {
	payload, err := h.buildPayload(alert)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < h.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			h.clock.Sleep(backoff, ctx.Done())
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := h.post(ctx, payload); err != nil {
			lastErr = err
			h.logger.Warnf("Webhook attempt %d/%d failed for alert %s: %v",
				attempt+1, h.config.RetryAttempts, alert.AlertID, err)
			continue
		}

		h.logger.Infof("Sent webhook notification for alert %s", alert.AlertID)
		return nil
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", h.config.RetryAttempts, lastErr)
}

// buildPayload renders the payload template when configured, otherwise the
// raw alert JSON.
func (h *WebhookHandler) buildPayload(alert *core.Alert) ([]byte, error) {
	if h.config.PayloadTemplate == "" {
		data, err := json.Marshal(alert)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal alert payload: %w", err)
		}
		return data, nil
	}

	contextJSON, err := json.Marshal(alert.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert context: %w", err)
	}

	rendered := strings.NewReplacer(
		"{alert_id}", alert.AlertID,
		"{rule_name}", alert.RuleName,
		"{severity}", string(alert.Severity),
		"{description}", alert.Description,
		"{category}", alert.Category,
		"{timestamp}", alert.Timestamp,
		"{session_id}", alert.SessionID,
		"{context}", string(contextJSON),
	).Replace(h.config.PayloadTemplate)

	// The rendered template must still be valid JSON.
	if !json.Valid([]byte(rendered)) {
		return nil, fmt.Errorf("webhook payload template rendered invalid JSON")
	}
	return []byte(rendered), nil
}

// post performs one delivery attempt.
func (h *WebhookHandler) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, h.config.Method, h.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Argus-Monitor/1.0")
	for key, value := range h.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
