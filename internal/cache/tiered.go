package cache

import (
	"context"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// Tiered consults caches in order. A hit in a later tier is copied into
// every earlier tier; writes go to all tiers.
type Tiered struct {
	tiers []domain.RankingCache
}

// NewTiered builds a cache from the given tiers, fastest first. Nil tiers
// are skipped.
func NewTiered(tiers ...domain.RankingCache) *Tiered {
	t := &Tiered{}
	for _, tier := range tiers {
		if tier != nil {
			t.tiers = append(t.tiers, tier)
		}
	}
	return t
}

func (t *Tiered) Get(ctx context.Context, key string) ([]domain.ScoredCandidate, bool) {
	for i, tier := range t.tiers {
		candidates, ok := tier.Get(ctx, key)
		if !ok {
			continue
		}
		for _, earlier := range t.tiers[:i] {
			earlier.Set(ctx, key, candidates)
		}
		return candidates, true
	}
	return nil, false
}

func (t *Tiered) Set(ctx context.Context, key string, candidates []domain.ScoredCandidate) {
	for _, tier := range t.tiers {
		tier.Set(ctx, key, candidates)
	}
}

// Noop never hits. It stands in when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]domain.ScoredCandidate, bool) { return nil, false }

func (Noop) Set(context.Context, string, []domain.ScoredCandidate) {}
