package core

import (
	"fmt"
	"strings"
)

// ResolvePath resolves a dotted field path ("action_details.command") into a
// nested record. Missing intermediate keys or non-map intermediates yield
// (nil, false), never an error. This is the single traversal point for all
// dynamic field access in the pipeline.
func ResolvePath(record map[string]interface{}, path string) (interface{}, bool) {
	if record == nil || path == "" {
		return nil, false
	}

	keys := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(record)

	for _, key := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			// LogRecord values may themselves be LogRecords.
			lr, lok := current.(LogRecord)
			if !lok {
				return nil, false
			}
			m = map[string]interface{}(lr)
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// ResolvePathString resolves a dotted path and renders the value as a string
// for context extraction. Missing paths yield an empty string.
func ResolvePathString(record map[string]interface{}, path string) string {
	v, ok := ResolvePath(record, path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
