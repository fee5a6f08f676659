// Package source provides access to the agent-activity log stream.
package source

import (
	"context"
	"time"

	"argus/core"
)

// LogSource is the pull-based interface the pipeline reads from. Query
// returns records ordered as the source emits them and skips malformed
// entries instead of failing the whole query. Healthy is a cheap
// reachability probe used for health gating.
type LogSource interface {
	Query(ctx context.Context, start, end time.Time, limit int) ([]core.LogRecord, error)
	Healthy(ctx context.Context) bool
}
