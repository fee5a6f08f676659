// Package report reads the alert log back for operator queries.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"argus/core"
)

// Reader scans the JSON-lines alert log produced by the log file channel.
// Lines that fail to parse are skipped; the log may interleave rotated
// fragments or truncated writes and a report should survive them.
type Reader struct {
	path  string
	clock core.Clock
}

// NewReader creates a Reader over the given alert log path.
func NewReader(path string, clock core.Clock) *Reader {
	if clock == nil {
		clock = core.RealClock()
	}
	return &Reader{path: path, clock: clock}
}

// Recent returns up to limit alerts, newest first. An empty severity matches
// all; otherwise only alerts of that severity are returned. A missing log
// file yields an empty slice, not an error.
func (r *Reader) Recent(limit int, severity core.Severity) ([]core.Alert, error) {
	alerts, err := r.readAll()
	if err != nil {
		return nil, err
	}

	if severity != "" {
		filtered := alerts[:0]
		for _, a := range alerts {
			if a.Severity == severity {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}

	// File order is chronological; reverse for newest first.
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}

	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

// Statistics summarizes alert volume over a trailing window of days.
type Statistics struct {
	Total      int            `json:"total"`
	Days       int            `json:"days"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
	ByRule     map[string]int `json:"by_rule"`
	Daily      []DailyCount   `json:"daily"`
}

// DailyCount is one day's alert total.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats aggregates alerts from the last days days.
func (r *Reader) Stats(days int) (*Statistics, error) {
	if days <= 0 {
		days = 7
	}
	alerts, err := r.readAll()
	if err != nil {
		return nil, err
	}

	cutoff := r.clock.Now().AddDate(0, 0, -days)
	stats := &Statistics{
		Days:       days,
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
		ByRule:     make(map[string]int),
	}
	daily := make(map[string]int)

	for _, a := range alerts {
		ts, err := time.Parse(time.RFC3339, a.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}

		stats.Total++
		stats.BySeverity[strings.ToLower(string(a.Severity))]++
		if a.Category != "" {
			stats.ByCategory[a.Category]++
		}
		stats.ByRule[a.RuleName]++
		daily[ts.UTC().Format("2006-01-02")]++
	}

	for date, count := range daily {
		stats.Daily = append(stats.Daily, DailyCount{Date: date, Count: count})
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		return stats.Daily[i].Date < stats.Daily[j].Date
	})

	return stats, nil
}

func (r *Reader) readAll() ([]core.Alert, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open alert log: %w", err)
	}
	defer f.Close()

	var alerts []core.Alert
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var alert core.Alert
		if err := json.Unmarshal([]byte(line), &alert); err != nil {
			continue
		}
		alerts = append(alerts, alert)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alert log: %w", err)
	}
	return alerts, nil
}
