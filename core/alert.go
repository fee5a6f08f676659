package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Severity classifies how serious an alert is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity for threshold
// comparisons. Unknown severities rank below LOW.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four recognized severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity normalizes a configured severity string, defaulting to
// MEDIUM for unrecognized values so a typo in a rule definition degrades
// rather than aborts.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	}
	return SeverityMedium
}

// Alert represents a single detected security condition, destined for
// notification. Alerts are read-only after creation.
type Alert struct {
	AlertID         string            `json:"alert_id"`
	RuleName        string            `json:"rule_name"`
	Severity        Severity          `json:"severity"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Timestamp       string            `json:"timestamp"`
	SessionID       string            `json:"session_id"`
	Context         map[string]string `json:"context"`
	RawRecord       LogRecord         `json:"raw_record"`
	EscalationCount int               `json:"escalation_count"`
}

// NewAlertID derives an alert identifier from the rule name, session and
// record timestamp. The ID is the first 12 hex characters of a SHA-256
// content hash: stable for triage and dedup-key grouping, but not
// collision-free and not safe as a primary key in durable storage.
func NewAlertID(ruleName, sessionID, timestamp string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", ruleName, sessionID, timestamp)))
	return hex.EncodeToString(sum[:])[:12]
}
