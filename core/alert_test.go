package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAlertID(t *testing.T) {
	id := NewAlertID("dangerous_commands", "session-1", "2026-08-29T10:00:00Z")
	assert.Len(t, id, 12)
	assert.Regexp(t, "^[0-9a-f]{12}$", id)

	// Same inputs, same ID.
	assert.Equal(t, id, NewAlertID("dangerous_commands", "session-1", "2026-08-29T10:00:00Z"))

	// Any input change produces a different ID.
	assert.NotEqual(t, id, NewAlertID("dangerous_commands", "session-2", "2026-08-29T10:00:00Z"))
	assert.NotEqual(t, id, NewAlertID("dangerous_commands", "session-1", "2026-08-29T10:00:01Z"))
	assert.NotEqual(t, id, NewAlertID("credential_access", "session-1", "2026-08-29T10:00:00Z"))
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), Severity("BOGUS").Rank())
}

func TestSeverityValid(t *testing.T) {
	assert.True(t, SeverityLow.Valid())
	assert.True(t, SeverityCritical.Valid())
	assert.False(t, Severity("").Valid())
	assert.False(t, Severity("medium").Valid())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, ParseSeverity("HIGH"))
	assert.Equal(t, SeverityLow, ParseSeverity("LOW"))

	// Unknown values degrade to MEDIUM instead of failing rule load.
	assert.Equal(t, SeverityMedium, ParseSeverity("severe"))
	assert.Equal(t, SeverityMedium, ParseSeverity(""))
}
