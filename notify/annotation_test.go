package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnnotationSend(t *testing.T) {
	var got map[string]interface{}
	var path, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewAnnotationHandler(AnnotationConfig{
		URL:          server.URL,
		APIKey:       "token123",
		DashboardUID: "agent-telemetry",
		Tags:         []string{"security"},
	}, zap.NewNop().Sugar())

	require.NoError(t, h.Send(context.Background(), consoleAlert()))

	assert.Equal(t, "/api/annotations", path)
	assert.Equal(t, "Bearer token123", auth)
	assert.Equal(t, "agent-telemetry", got["dashboardUID"])
	assert.Equal(t, "Destructive command executed (Rule: dangerous_commands)", got["text"])

	// Severity and category ride along as tags.
	tags := got["tags"].([]interface{})
	assert.Contains(t, tags, "security")
	assert.Contains(t, tags, "high")
	assert.Contains(t, tags, "command_execution")

	// The annotation spans one minute from the alert timestamp.
	start := got["time"].(float64)
	end := got["timeEnd"].(float64)
	assert.Equal(t, float64(60000), end-start)
}

func TestAnnotationFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := NewAnnotationHandler(AnnotationConfig{URL: server.URL, APIKey: "token"}, zap.NewNop().Sugar())

	// A dashboard outage never fails delivery.
	assert.NoError(t, h.Send(context.Background(), consoleAlert()))
}

func TestAnnotationNoAPIKeyIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	h := NewAnnotationHandler(AnnotationConfig{URL: server.URL}, zap.NewNop().Sugar())
	assert.NoError(t, h.Send(context.Background(), consoleAlert()))
	assert.False(t, called)
}

func TestAnnotationBestEffort(t *testing.T) {
	h := NewAnnotationHandler(AnnotationConfig{}, zap.NewNop().Sugar())
	assert.True(t, h.BestEffort())
}
