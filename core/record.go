package core

import (
	"time"

	"github.com/google/uuid"
)

// LogRecord is a single structured agent-activity record as returned by the
// log source. Records are loosely typed and immutable once read; all field
// access goes through ResolvePath or the typed helpers below.
type LogRecord map[string]interface{}

// RecordID returns the record's identifier, assigning a fresh UUID when the
// source did not provide one. The assigned ID is not written back into the
// record.
func (r LogRecord) RecordID() string {
	if id := r.String("record_id"); id != "" {
		return id
	}
	return uuid.New().String()
}

// SessionID returns the record's session identifier, or "unknown" when the
// record carries none.
func (r LogRecord) SessionID() string {
	if sid := r.String("session_id"); sid != "" {
		return sid
	}
	return "unknown"
}

// String returns the string value at a dotted path, or "" when the path is
// missing or the value is not a string.
func (r LogRecord) String(path string) string {
	v, ok := ResolvePath(r, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Bool returns the boolean value at a dotted path. Missing paths and
// non-boolean values read as false.
func (r LogRecord) Bool(path string) bool {
	v, ok := ResolvePath(r, path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Timestamp parses the record's timestamp field, falling back to now for a
// missing or malformed value. Data errors never abort record processing.
func (r LogRecord) Timestamp(now time.Time) time.Time {
	raw := r.String("timestamp")
	if raw == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return now
}
