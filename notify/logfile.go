package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"argus/core"
)

// LogFileConfig holds settings for the append-only alert log sink.
type LogFileConfig struct {
	Path      string
	MaxSizeMB int
	KeepFiles int
}

// LogFileHandler appends one JSON object per line to the alert log,
// rotating by size. The file is the pipeline's only persistence surface and
// is consumed externally by the reporting CLI.
type LogFileHandler struct {
	config LogFileConfig
	mu     sync.Mutex
}

// NewLogFileHandler creates the log sink, making sure its directory exists.
func NewLogFileHandler(config LogFileConfig) (*LogFileHandler, error) {
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 100
	}
	if config.KeepFiles <= 0 {
		config.KeepFiles = 5
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create alert log directory: %w", err)
	}
	return &LogFileHandler{config: config}, nil
}

// Name identifies the channel.
func (h *LogFileHandler) Name() string { return "logfile" }

// Send appends the alert as one JSON line, rotating first when the current
// file exceeds the size limit. Rotation happens before the write so a line
// is never split across files.
func (h *LogFileHandler) Send(_ context.Context, alert *core.Alert) error {
	line, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.rotateIfNeeded(); err != nil {
		return err
	}

	f, err := os.OpenFile(h.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open alert log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write alert log: %w", err)
	}
	return nil
}

// rotateIfNeeded shifts numbered backups up and moves the current file to
// .1 when it has outgrown the size limit. Caller holds the lock.
func (h *LogFileHandler) rotateIfNeeded() error {
	info, err := os.Stat(h.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat alert log: %w", err)
	}

	if info.Size() < int64(h.config.MaxSizeMB)*1024*1024 {
		return nil
	}

	for i := h.config.KeepFiles - 1; i >= 1; i-- {
		older := fmt.Sprintf("%s.%d", h.config.Path, i)
		newer := fmt.Sprintf("%s.%d", h.config.Path, i+1)
		if _, err := os.Stat(older); err == nil {
			if err := os.Rename(older, newer); err != nil {
				return fmt.Errorf("failed to shift rotated log %s: %w", older, err)
			}
		}
	}

	if err := os.Rename(h.config.Path, h.config.Path+".1"); err != nil {
		return fmt.Errorf("failed to rotate alert log: %w", err)
	}
	return nil
}
