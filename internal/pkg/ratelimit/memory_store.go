// internal/pkg/ratelimit/memory_store.go
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the per-process fallback used when no Redis address is
// configured. It keeps a map of identifier -> request timestamps, pruned
// on access rather than continuously, so the window is approximate.
//
// Known limitation: state lives in one process. In a horizontally scaled
// deployment each instance counts independently, so the effective budget
// is multiplied by the instance count. Acceptable for single-instance and
// demo deployments only.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

func (s *MemoryStore) Allow(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Prune entries that fell out of the window
	recent := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= max {
		s.hits[key] = recent
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   recent[0].Add(window),
		}, nil
	}

	recent = append(recent, now)
	s.hits[key] = recent

	return Result{
		Allowed:   true,
		Remaining: max - len(recent),
		ResetAt:   now.Add(window),
	}, nil
}
