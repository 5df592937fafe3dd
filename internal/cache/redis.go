package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore is a Cache shared between machines through Redis. Entries
// expire after the TTL; a zero TTL keeps them until evicted.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewRedisStore connects to addr and verifies connectivity
func NewRedisStore(ctx context.Context, addr, password string, ttl time.Duration, logger logrus.FieldLogger) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address missing")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	// fail fast on startup
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.WithField("addr", addr).Info("redis cache connected")
	return &RedisStore{client: client, prefix: "defectlab", ttl: ttl, logger: logger}, nil
}

// Key generates the Redis key of bucket/key
// Example: "defectlab:tickets:BOOKKEEPER"
func (r *RedisStore) Key(bucket, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, bucket, key)
}

// Get retrieves a cached value; a miss is not an error
func (r *RedisStore) Get(ctx context.Context, bucket, key string, v interface{}) (bool, error) {
	k := r.Key(bucket, key)
	val, err := r.client.Get(ctx, k).Bytes()
	if err == redis.Nil {
		r.logger.WithField("key", k).Debug("cache miss")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed for key %s: %w", k, err)
	}

	if err := json.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", k, err)
	}
	return true, nil
}

// Put stores v as JSON with the store TTL
func (r *RedisStore) Put(ctx context.Context, bucket, key string, v interface{}) error {
	k := r.Key(bucket, key)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", k, err)
	}

	if err := r.client.Set(ctx, k, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", k, err)
	}
	return nil
}

// Close closes the Redis client connection
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
