package detect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/config"
	"argus/core"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func compileRules(t *testing.T, defs map[string]config.RuleConfig) []*CompiledRule {
	t.Helper()
	cfg := &config.Config{Rules: defs}
	rules, err := LoadRules(cfg, 500*time.Millisecond, testLogger())
	require.NoError(t, err)
	return rules
}

func TestLoadRulesSkipsDisabled(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"active":   {Enabled: true, Pattern: "foo", Severity: "HIGH"},
		"inactive": {Enabled: false, Pattern: "bar", Severity: "HIGH"},
	})

	require.Len(t, rules, 1)
	assert.Equal(t, "active", rules[0].Name)
}

func TestLoadRulesSkipsInvalidPattern(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"broken": {Enabled: true, Pattern: "([unclosed", Severity: "HIGH"},
		"good":   {Enabled: true, Pattern: "curl.+evil", Severity: "LOW"},
	})

	require.Len(t, rules, 1)
	assert.Equal(t, "good", rules[0].Name)
}

func TestLoadRulesDefaults(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		"r": {Enabled: true, Pattern: "x", Severity: "NONSENSE"},
	})

	require.Len(t, rules, 1)
	assert.Equal(t, core.SeverityMedium, rules[0].Severity)
	assert.Equal(t, "general", rules[0].Category)
}

func TestLoadRulesBehavioral(t *testing.T) {
	rules := compileRules(t, map[string]config.RuleConfig{
		RuleHighFrequency: {Enabled: true, Severity: "MEDIUM"},
	})

	require.Len(t, rules, 1)
	assert.True(t, rules[0].Behavioral())
	assert.Nil(t, rules[0].matcher)
}

func TestLoadRulesDeterministicOrder(t *testing.T) {
	defs := map[string]config.RuleConfig{
		"zeta":  {Enabled: true, Pattern: "z"},
		"alpha": {Enabled: true, Pattern: "a"},
		"mid":   {Enabled: true, Pattern: "m"},
	}

	rules := compileRules(t, defs)
	require.Len(t, rules, 3)
	assert.Equal(t, "alpha", rules[0].Name)
	assert.Equal(t, "mid", rules[1].Name)
	assert.Equal(t, "zeta", rules[2].Name)
}

func TestLoadRulesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  credential_access:
    enabled: true
    severity: CRITICAL
    pattern: "(\\.env|credentials|id_rsa)"
    description: Access to credential files
    category: credential_access
    context_fields:
      - action_details.file_path
  shared:
    enabled: true
    severity: LOW
    pattern: from_file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := &config.Config{
		RulesFile: path,
		Rules: map[string]config.RuleConfig{
			// Inline definition wins over the file's.
			"shared": {Enabled: true, Severity: "HIGH", Pattern: "from_inline"},
		},
	}

	rules, err := LoadRules(cfg, 500*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	byName := map[string]*CompiledRule{}
	for _, r := range rules {
		byName[r.Name] = r
	}

	cred := byName["credential_access"]
	require.NotNil(t, cred)
	assert.Equal(t, core.SeverityCritical, cred.Severity)
	assert.Equal(t, []string{"action_details.file_path"}, cred.ContextFields)

	shared := byName["shared"]
	require.NotNil(t, shared)
	assert.Equal(t, core.SeverityHigh, shared.Severity)
	assert.Equal(t, "from_inline", shared.Pattern)
}

func TestLoadRulesMissingFile(t *testing.T) {
	cfg := &config.Config{RulesFile: "/nonexistent/rules.yaml"}
	_, err := LoadRules(cfg, 500*time.Millisecond, testLogger())
	assert.Error(t, err)
}
