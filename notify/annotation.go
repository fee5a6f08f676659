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

// AnnotationConfig holds settings for the dashboard annotation channel.
type AnnotationConfig struct {
	URL          string
	APIKey       string
	DashboardUID string
	Tags         []string
}

// AnnotationHandler marks alerts on the telemetry dashboard as Grafana
// annotations. The channel is best-effort: a dashboard outage must never
// fail alert delivery.
type AnnotationHandler struct {
	config AnnotationConfig
	client *http.Client
	logger *zap.SugaredLogger
}

// NewAnnotationHandler creates the annotation channel.
func NewAnnotationHandler(config AnnotationConfig, logger *zap.SugaredLogger) *AnnotationHandler {
	return &AnnotationHandler{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Name identifies the channel.
func (h *AnnotationHandler) Name() string { return "annotation" }

// BestEffort marks this channel as excluded from dispatch success
// accounting.
func (h *AnnotationHandler) BestEffort() bool { return true }

// Send creates a dashboard annotation for the alert. Failures are logged
// and swallowed.
func (h *AnnotationHandler) Send(ctx context.Context, alert *core.Alert) error {
	if h.config.APIKey == "" {
		return nil
	}

	if err := h.annotate(ctx, alert); err != nil {
		h.logger.Warnf("Annotation for alert %s failed: %v", alert.AlertID, err)
		return nil
	}

	h.logger.Infof("Created dashboard annotation for alert %s", alert.AlertID)
	return nil
}

func (h *AnnotationHandler) annotate(ctx context.Context, alert *core.Alert) error {
	ts, err := time.Parse(time.RFC3339, alert.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	timestampMS := ts.UnixMilli()

	tags := append([]string{}, h.config.Tags...)
	tags = append(tags, strings.ToLower(string(alert.Severity)), alert.Category)

	annotation := map[string]interface{}{
		"dashboardUID": h.config.DashboardUID,
		"time":         timestampMS,
		"timeEnd":      timestampMS + 60000,
		"tags":         tags,
		"text":         fmt.Sprintf("%s (Rule: %s)", alert.Description, alert.RuleName),
	}

	payload, err := json.Marshal(annotation)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL+"/api/annotations", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create annotation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send annotation: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("annotation API returned status %d", resp.StatusCode)
	}
	return nil
}
