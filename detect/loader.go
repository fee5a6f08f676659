// Package detect implements rule-based and behavioral detection over
// agent-activity log records.
package detect

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"argus/config"
	"argus/core"
)

// CompiledRule pairs a rule definition with its compiled pattern matcher.
// Behavioral rules (no pattern) have a nil matcher.
type CompiledRule struct {
	core.Rule
	matcher *regexp2.Regexp
}

// ruleFile is the YAML shape of an external rules file: named definitions
// under a top-level "rules" key.
type ruleFile struct {
	Rules map[string]config.RuleConfig `yaml:"rules"`
}

// LoadRules compiles the enabled rule definitions from the inline config map
// and the optional rules file. Rules with invalid patterns are skipped with
// a warning; pattern problems are a load-time concern, never an
// evaluation-time one. Inline definitions win on name conflicts.
func LoadRules(cfg *config.Config, regexTimeout time.Duration, logger *zap.SugaredLogger) ([]*CompiledRule, error) {
	merged := make(map[string]config.RuleConfig)

	if cfg.RulesFile != "" {
		fileRules, err := readRuleFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		for name, rc := range fileRules {
			merged[name] = rc
		}
	}
	for name, rc := range cfg.Rules {
		merged[name] = rc
	}

	// Deterministic rule ordering keeps evaluation and logs stable.
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	var rules []*CompiledRule
	for _, name := range names {
		rc := merged[name]
		if !rc.Enabled {
			continue
		}

		rule := &CompiledRule{Rule: core.Rule{
			Name:          name,
			Enabled:       rc.Enabled,
			Severity:      core.ParseSeverity(rc.Severity),
			Pattern:       rc.Pattern,
			Description:   rc.Description,
			Category:      defaultCategory(rc.Category),
			ContextFields: rc.ContextFields,
			Threshold:     rc.Threshold,
		}}

		if rc.Pattern != "" {
			matcher, err := regexp2.Compile(rc.Pattern, regexp2.IgnoreCase)
			if err != nil {
				logger.Warnf("Invalid pattern in rule %s: %v, skipping rule", name, err)
				continue
			}
			matcher.MatchTimeout = regexTimeout
			rule.matcher = matcher
		}

		rules = append(rules, rule)
	}

	logger.Infof("Loaded %d detection rules", len(rules))
	return rules, nil
}

// readRuleFile loads named rule definitions from a YAML file.
func readRuleFile(path string) (map[string]config.RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rf.Rules, nil
}

func defaultCategory(category string) string {
	if category == "" {
		return "general"
	}
	return category
}
