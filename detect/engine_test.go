package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/config"
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

func testRecord() core.LogRecord {
	return core.LogRecord{
		"session_id": "sess-1",
		"timestamp":  "2026-08-29T10:00:00Z",
		"action":     "tool_call",
		"action_details": map[string]interface{}{
			"tool":    "Bash",
			"command": "rm -rf /tmp/workdir",
		},
	}
}

func TestEngineEvaluateMatch(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"dangerous_commands": {
			Enabled:       true,
			Severity:      "HIGH",
			Pattern:       `(rm\s+-rf|mkfs|dd\s+if=)`,
			Description:   "Destructive command executed",
			Category:      "command_execution",
			ContextFields: []string{"action_details.command", "action_details.tool", "action_details.absent"},
		},
	})
	engine := NewRuleEngine(rules, &fakeClock{}, testLogger())

	alerts := engine.Evaluate(testRecord())
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, "dangerous_commands", alert.RuleName)
	assert.Equal(t, core.SeverityHigh, alert.Severity)
	assert.Equal(t, "command_execution", alert.Category)
	assert.Equal(t, "sess-1", alert.SessionID)
	assert.Equal(t, "2026-08-29T10:00:00Z", alert.Timestamp)
	assert.Len(t, alert.AlertID, 12)

	// Context fields are resolved with dotted paths; missing fields read
	// as empty strings rather than being dropped.
	assert.Equal(t, "rm -rf /tmp/workdir", alert.Context["action_details.command"])
	assert.Equal(t, "Bash", alert.Context["action_details.tool"])
	assert.Equal(t, "", alert.Context["action_details.absent"])
}

func TestEngineEvaluateNoMatch(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"dangerous_commands": {Enabled: true, Pattern: "mkfs", Severity: "HIGH"},
	})
	engine := NewRuleEngine(rules, &fakeClock{}, testLogger())

	assert.Empty(t, engine.Evaluate(testRecord()))
}

func TestEngineEvaluateCaseInsensitive(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"r": {Enabled: true, Pattern: "RM\\s+-RF", Severity: "HIGH"},
	})
	engine := NewRuleEngine(rules, &fakeClock{}, testLogger())

	assert.Len(t, engine.Evaluate(testRecord()), 1)
}

func TestEngineEvaluateMultipleRules(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"a": {Enabled: true, Pattern: "rm -rf", Severity: "HIGH"},
		"b": {Enabled: true, Pattern: "Bash", Severity: "LOW"},
		"c": {Enabled: true, Pattern: "no_such_text", Severity: "LOW"},
	})
	engine := NewRuleEngine(rules, &fakeClock{}, testLogger())

	// Rules are independent; one record can trigger several.
	assert.Len(t, engine.Evaluate(testRecord()), 2)
}

func TestEngineSkipsBehavioralRules(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		RuleHighFrequency: {Enabled: true, Severity: "MEDIUM"},
	})
	engine := NewRuleEngine(rules, &fakeClock{}, testLogger())

	assert.Empty(t, engine.Evaluate(testRecord()))
}

func TestEngineFallbackTimestamp(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"r": {Enabled: true, Pattern: "tool_call", Severity: "LOW"},
	})
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	engine := NewRuleEngine(rules, &fakeClock{now: now}, testLogger())

	record := testRecord()
	delete(record, "timestamp")

	alerts := engine.Evaluate(record)
	require.Len(t, alerts, 1)
	assert.Equal(t, now.Format(time.RFC3339), alerts[0].Timestamp)
}
