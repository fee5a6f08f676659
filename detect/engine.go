package detect

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// RuleEngine evaluates pattern rules against individual log records.
type RuleEngine struct {
	rules  []*CompiledRule
	clock  core.Clock
	logger *zap.SugaredLogger
}

// NewRuleEngine creates a rule engine over the given compiled rules.
func NewRuleEngine(rules []*CompiledRule, clock core.Clock, logger *zap.SugaredLogger) *RuleEngine {
	if clock == nil {
		clock = core.RealClock()
	}
	return &RuleEngine{rules: rules, clock: clock, logger: logger}
}

// RuleCount returns the number of loaded rules.
func (e *RuleEngine) RuleCount() int {
	return len(e.rules)
}

// Evaluate tests every pattern rule against the record and returns the
// candidate alerts for all matches. Rules are independent: a single record
// may trigger any number of them. Behavioral rules are ignored here.
func (e *RuleEngine) Evaluate(record core.LogRecord) []*core.Alert {
	var alerts []*core.Alert

	// Searchable text form of the record. Only substring/regex matching is
	// performed against it, so field ordering does not matter.
	text, err := json.Marshal(record)
	if err != nil {
		e.logger.Warnf("Failed to serialize record for matching: %v", err)
		return nil
	}
	searchable := string(text)

	for _, rule := range e.rules {
		if rule.matcher == nil {
			continue
		}

		matched, err := rule.matcher.MatchString(searchable)
		if err != nil {
			// Pattern timeout. Treated as no match so a pathological
			// pattern cannot stall the cycle.
			e.logger.Warnf("Pattern evaluation for rule %s failed: %v", rule.Name, err)
			continue
		}
		if !matched {
			continue
		}

		alerts = append(alerts, e.buildAlert(rule, record))
	}

	return alerts
}

// buildAlert assembles an Alert for a matched rule, extracting the rule's
// configured context fields from the record.
func (e *RuleEngine) buildAlert(rule *CompiledRule, record core.LogRecord) *core.Alert {
	context := make(map[string]string, len(rule.ContextFields))
	for _, field := range rule.ContextFields {
		context[field] = core.ResolvePathString(record, field)
	}

	timestamp := record.String("timestamp")
	if timestamp == "" {
		timestamp = e.clock.Now().Format(time.RFC3339)
	}
	sessionID := record.SessionID()

	return &core.Alert{
		AlertID:     core.NewAlertID(rule.Name, sessionID, timestamp),
		RuleName:    rule.Name,
		Severity:    rule.Severity,
		Description: rule.Description,
		Category:    rule.Category,
		Timestamp:   timestamp,
		SessionID:   sessionID,
		Context:     context,
		RawRecord:   record,
	}
}
