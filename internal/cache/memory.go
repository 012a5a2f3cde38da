package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// MemoryCache is an in-process LRU of ranked candidates with per-entry expiry
type MemoryCache struct {
	lru *expirable.LRU[string, []domain.ScoredCandidate]
}

// NewMemoryCache creates a cache holding at most size entries for ttl each.
// A zero ttl disables expiry.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory cache size must be positive, got %d", size)
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []domain.ScoredCandidate](size, nil, ttl)}, nil
}

// Get returns a copy of the cached candidates
func (m *MemoryCache) Get(_ context.Context, key string) ([]domain.ScoredCandidate, bool) {
	candidates, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	return clone(candidates), true
}

// Set stores a copy of candidates under key
func (m *MemoryCache) Set(_ context.Context, key string, candidates []domain.ScoredCandidate) {
	m.lru.Add(key, clone(candidates))
}

// Len returns the number of live entries
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Purge drops every entry
func (m *MemoryCache) Purge() {
	m.lru.Purge()
}

func clone(candidates []domain.ScoredCandidate) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, len(candidates))
	copy(out, candidates)
	return out
}
