package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store keeps the per-key timestamp history behind the deduplicator. Allow
// atomically discards entries older than the window, checks the remaining
// count against max, and records ts when the alert is admitted.
type Store interface {
	Name() string
	Allow(ctx context.Context, key string, ts time.Time, window time.Duration, max int) (bool, error)
}

// keyHistory is the recorded timestamps for one dedup key. Each history has
// its own mutex so unrelated keys never serialize on each other.
type keyHistory struct {
	mu    sync.Mutex
	times []time.Time
}

// MemoryStore is the default in-process history store. Keys are bounded by
// an LRU so the history map cannot grow without limit across long runs.
type MemoryStore struct {
	keys *lru.Cache[string, *keyHistory]
	mu   sync.Mutex // guards cache lookups+inserts only
}

// NewMemoryStore creates a memory store bounded to maxKeys dedup keys.
func NewMemoryStore(maxKeys int) (*MemoryStore, error) {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	keys, err := lru.New[string, *keyHistory](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup key cache: %w", err)
	}
	return &MemoryStore{keys: keys}, nil
}

// Name identifies the store in logs and metrics.
func (s *MemoryStore) Name() string { return "memory" }

// Allow implements Store against the in-process history.
func (s *MemoryStore) Allow(_ context.Context, key string, ts time.Time, window time.Duration, max int) (bool, error) {
	history := s.history(key)

	history.mu.Lock()
	defer history.mu.Unlock()

	cutoff := ts.Add(-window)
	kept := history.times[:0]
	for _, recorded := range history.times {
		if recorded.After(cutoff) {
			kept = append(kept, recorded)
		}
	}
	history.times = kept

	if len(history.times) >= max {
		return false, nil
	}

	history.times = append(history.times, ts)
	return true, nil
}

func (s *MemoryStore) history(key string) *keyHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.keys.Get(key); ok {
		return h
	}
	h := &keyHistory{}
	s.keys.Add(key, h)
	return h
}
