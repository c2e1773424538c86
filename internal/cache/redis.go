// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vidpipe/internal/metrics"
)

// RedisStore is a Redis-backed implementation of Store. It trades the LRU's
// strict recency ordering for a shared cache multiple processes can hit;
// expiry is enforced server-side via the configured TTL.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string        // Redis server address (host:port)
	Password string        // Redis password (optional)
	DB       int           // Redis database number
	TTL      time.Duration // per-entry TTL (0 = no expiry)
}

// NewRedisStore creates a Redis-backed store and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis cache")

	return &RedisStore{client: client, logger: logger, ttl: cfg.TTL}, nil
}

func (s *RedisStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// Get retrieves a value from Redis.
func (s *RedisStore) Get(key string) (string, bool) {
	ctx, cancel := s.opCtx()
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		s.misses.Add(1)
		metrics.IncCacheMiss()
		return "", false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		s.misses.Add(1)
		metrics.IncCacheMiss()
		return "", false
	}
	s.hits.Add(1)
	metrics.IncCacheHit()
	return val, true
}

// Set stores a value in Redis with the store's TTL.
func (s *RedisStore) Set(key, value string) {
	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// Delete removes a key, reporting whether it was present.
func (s *RedisStore) Delete(key string) bool {
	ctx, cancel := s.opCtx()
	defer cancel()

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
		return false
	}
	return n > 0
}

// Clear flushes the current Redis DB and resets the local counters.
func (s *RedisStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.FlushDB(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis flush failed")
	}
	s.hits.Store(0)
	s.misses.Store(0)
}

// Len returns the number of keys in the current DB.
func (s *RedisStore) Len() int {
	ctx, cancel := s.opCtx()
	defer cancel()

	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("redis dbsize failed")
		return 0
	}
	return int(size)
}

// Contains reports key presence without counting a hit or miss.
func (s *RedisStore) Contains(key string) bool {
	ctx, cancel := s.opCtx()
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis exists failed")
		return false
	}
	return n > 0
}

// Stats returns a snapshot of the store counters.
func (s *RedisStore) Stats() Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Size:    s.Len(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Total:   total,
	}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// HealthCheck checks if Redis is reachable.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
