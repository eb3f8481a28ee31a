package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scamwatch/internal/config"
	"scamwatch/pkg/logger"
)

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    log,
	}, nil
}

// Client returns the underlying Redis client
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.key(key)).Result()
}

// Set stores a value in cache with optional TTL
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// Expire sets a TTL on a key
func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, c.key(key), ttl).Err()
}

// SetNX sets a value only if the key does not exist (for distributed locks)
func (c *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), value, ttl).Result()
}

// SAdd adds members to a set
func (c *RedisCache) SAdd(ctx context.Context, key string, members ...any) error {
	return c.client.SAdd(ctx, c.key(key), members...).Err()
}

// SIsMember checks if a value is a member of a set
func (c *RedisCache) SIsMember(ctx context.Context, key string, member any) (bool, error) {
	return c.client.SIsMember(ctx, c.key(key), member).Result()
}

// Pipeline returns a Redis pipeline for batch operations
func (c *RedisCache) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}

// Cache key constants
const (
	// Job lock keys: one lock per job type enforces at most one
	// concurrent execution of each job
	KeyJobLock      = "jobs:lock:"
	KeyScanJob      = "scan"
	KeyNightlyJob   = "nightly"

	// Sender reputation set
	KeyKnownScammers = "reputation:known_scammers"

	// Daily AI review budget counter prefix
	KeyAIBudgetPrefix = "ai:budget:"

	// Last run bookkeeping
	KeyLastScanRun = "jobs:last_scan"
)

// AcquireLock attempts to acquire a distributed job lock
func (c *RedisCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, KeyJobLock+lockKey, "locked", ttl)
}

// ReleaseLock releases a distributed job lock
func (c *RedisCache) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.Delete(ctx, KeyJobLock+lockKey)
}

// RefreshLock extends the TTL of a held job lock
func (c *RedisCache) RefreshLock(ctx context.Context, lockKey string, ttl time.Duration) error {
	return c.Expire(ctx, KeyJobLock+lockKey, ttl)
}

// ConsumeAIBudget increments the AI review counter for the given date and
// reports how many reviews of the requested amount fit under the daily
// limit. The counter key expires after two days.
func (c *RedisCache) ConsumeAIBudget(ctx context.Context, date string, requested, dailyLimit int) (int, error) {
	key := c.key(KeyAIBudgetPrefix + date)

	pipe := c.client.Pipeline()
	incr := pipe.IncrBy(ctx, key, int64(requested))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to consume AI budget: %w", err)
	}

	total := int(incr.Val())
	over := total - dailyLimit
	if over <= 0 {
		return requested, nil
	}
	granted := requested - over
	if granted < 0 {
		granted = 0
	}
	return granted, nil
}

// SenderReputationStore is a Redis-backed implementation of the
// detection.SenderReputation interface. Known-bad senders live in a
// Redis set so reputation survives process restarts and is shared
// across workers.
type SenderReputationStore struct {
	cache *RedisCache
}

// NewSenderReputationStore creates a reputation store over the cache
func NewSenderReputationStore(cache *RedisCache) *SenderReputationStore {
	return &SenderReputationStore{cache: cache}
}

// IsKnown reports whether the address was previously marked as a scammer
func (s *SenderReputationStore) IsKnown(ctx context.Context, address string) (bool, error) {
	return s.cache.SIsMember(ctx, KeyKnownScammers, address)
}

// Mark records the address as a known scam sender
func (s *SenderReputationStore) Mark(ctx context.Context, address string) error {
	return s.cache.SAdd(ctx, KeyKnownScammers, address)
}
