package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration, _ <-chan struct{}) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// failingStore simulates a broken backend.
type failingStore struct{}

func (failingStore) Name() string { return "failing" }

func (failingStore) Allow(context.Context, string, time.Time, time.Duration, int) (bool, error) {
	return false, errors.New("backend down")
}

func testAlert(ts time.Time) *core.Alert {
	stamp := ts.Format(time.RFC3339)
	return &core.Alert{
		AlertID:     core.NewAlertID("dangerous_commands", "sess-1", stamp),
		RuleName:    "dangerous_commands",
		Severity:    core.SeverityHigh,
		Description: "Destructive command executed",
		Category:    "command_execution",
		Timestamp:   stamp,
		SessionID:   "sess-1",
		Context:     map[string]string{"action_details.command": "rm -rf /"},
	}
}

func newMemoryDedup(t *testing.T, cfg Config, clock core.Clock) *Deduplicator {
	t.Helper()
	store, err := NewMemoryStore(0)
	require.NoError(t, err)
	return New(cfg, store, clock, zap.NewNop().Sugar())
}

func TestDedupWindowBudget(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	d := newMemoryDedup(t, DefaultConfig(), clock)
	ctx := context.Background()

	// The first three identical alerts inside the window pass.
	for i := 0; i < 3; i++ {
		alert := testAlert(start.Add(time.Duration(i) * time.Second))
		assert.True(t, d.ShouldAlert(ctx, alert), "alert %d", i+1)
	}

	// The fourth is suppressed.
	assert.False(t, d.ShouldAlert(ctx, testAlert(start.Add(3*time.Second))))

	// Once the window slides past the earlier occurrences, the key's
	// budget frees up again.
	later := start.Add(6 * time.Minute)
	clock.now = later
	assert.True(t, d.ShouldAlert(ctx, testAlert(later)))
}

func TestDedupDistinctKeysIndependent(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	d := newMemoryDedup(t, DefaultConfig(), &fakeClock{now: start})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, d.ShouldAlert(ctx, testAlert(start)))
	}
	assert.False(t, d.ShouldAlert(ctx, testAlert(start)))

	// A different session is a different key with its own budget.
	other := testAlert(start)
	other.SessionID = "sess-2"
	assert.True(t, d.ShouldAlert(ctx, other))
}

func TestDedupDisabled(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.Enabled = false
	d := newMemoryDedup(t, cfg, &fakeClock{now: start})

	for i := 0; i < 10; i++ {
		assert.True(t, d.ShouldAlert(context.Background(), testAlert(start)))
	}
}

func TestDedupFailsOpen(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	d := New(DefaultConfig(), failingStore{}, &fakeClock{now: start}, zap.NewNop().Sugar())

	// A broken store degrades dedup, never delivery.
	for i := 0; i < 10; i++ {
		assert.True(t, d.ShouldAlert(context.Background(), testAlert(start)))
	}
}

func TestDedupKey(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	alert := testAlert(start)

	cfg := DefaultConfig()
	d := newMemoryDedup(t, cfg, &fakeClock{now: start})
	assert.Equal(t, "dangerous_commands|sess-1", d.Key(alert))

	cfg.KeyFields = []string{"rule_name", "severity", "action_details.command"}
	d = newMemoryDedup(t, cfg, &fakeClock{now: start})
	// Unknown attribute names fall through to the context map.
	assert.Equal(t, "dangerous_commands|HIGH|rm -rf /", d.Key(alert))
}

func TestMemoryStoreBoundedKeys(t *testing.T) {
	store, err := NewMemoryStore(10)
	require.NoError(t, err)

	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		_, err := store.Allow(context.Background(), fmt.Sprintf("key-%d", i), now, time.Minute, 1)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, store.keys.Len(), 10)
}
