package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a redis-backed Store. Mappings are plain namespaced string
// keys with per-key TTLs; conversation cleanup and heuristic scans use SCAN
// so large keyspaces are never blocked by KEYS.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// scanBatchSize is the COUNT hint passed to SCAN.
const scanBatchSize = 200

// NewRedisStore connects to redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Set upserts a value with TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value, mapping redis.Nil to ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Keys lists all keys with the given prefix via SCAN.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteByPrefix removes every key with the given prefix.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// Close closes the underlying redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
