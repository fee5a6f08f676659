package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// LokiClient reads log records from a Loki query_range endpoint.
type LokiClient struct {
	baseURL string
	query   string
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewLokiClient creates a client for the given Loki base URL. The query is
// the LogQL stream selector used for every range query.
func NewLokiClient(baseURL, query string, timeout time.Duration, logger *zap.SugaredLogger) *LokiClient {
	return &LokiClient{
		baseURL: baseURL,
		query:   query,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// queryRangeResponse mirrors the subset of the Loki response we consume.
type queryRangeResponse struct {
	Data struct {
		Result []struct {
			Values [][2]string `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Query fetches log records in [start, end). Lines that fail to parse as
// JSON are kept as raw records rather than dropped, matching the sink's
// tolerance for heterogeneous entries.
func (c *LokiClient) Query(ctx context.Context, start, end time.Time, limit int) ([]core.LogRecord, error) {
	params := url.Values{}
	params.Set("query", c.query)
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))

	reqURL := fmt.Sprintf("%s/loki/api/v1/query_range?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build query request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("log source query failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("log source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read query response: %w", err)
	}

	var parsed queryRangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}

	var records []core.LogRecord
	for _, stream := range parsed.Data.Result {
		for _, entry := range stream.Values {
			ts, line := entry[0], entry[1]

			var record core.LogRecord
			if err := json.Unmarshal([]byte(line), &record); err != nil || record == nil {
				// Malformed entries (including the JSON literal null,
				// which decodes into a nil map without error) are
				// preserved rather than failing the query.
				record = core.LogRecord{"_raw": line}
			}
			record["_timestamp"] = ts
			records = append(records, record)
		}
	}

	return records, nil
}

// Healthy probes the Loki readiness endpoint.
func (c *LokiClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	return resp.StatusCode == http.StatusOK
}
