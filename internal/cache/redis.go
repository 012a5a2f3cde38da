package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// RedisCache shares ranked candidates between server instances.
// Failures are logged and treated as misses.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logrus.Logger
}

// NewRedisCache connects to the Redis instance named by cfg.RedisURL
func NewRedisCache(cfg domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.DefaultTTL,
		logger:    logger,
	}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]domain.ScoredCandidate, bool) {
	val, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.WithError(err).Debug("Ranking cache read failed")
		return nil, false
	}

	var candidates []domain.ScoredCandidate
	if err := json.Unmarshal(val, &candidates); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable ranking cache entry")
		return nil, false
	}
	return candidates, true
}

func (r *RedisCache) Set(ctx context.Context, key string, candidates []domain.ScoredCandidate) {
	if candidates == nil {
		candidates = []domain.ScoredCandidate{}
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to encode ranking cache entry")
		return
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, data, r.ttl).Err(); err != nil {
		r.logger.WithError(err).Debug("Ranking cache write failed")
	}
}

// Ping checks Redis connectivity
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (r *RedisCache) Close() error {
	return r.client.Close()
}
