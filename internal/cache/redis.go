package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when the key is absent
var ErrMiss = redis.Nil

// RedisClient is an interface for Redis operations
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// redisClient implements the RedisClient interface
type redisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client. A disabled cache yields a client
// that always misses.
func NewRedisClient(cfg config.RedisConfig) (RedisClient, error) {
	if !cfg.Enabled {
		return NewNoopClient(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisClient{client: client}, nil
}

// Get retrieves a value from Redis
func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Set stores a value in Redis with expiration
func (r *redisClient) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Delete removes a key from Redis
func (r *redisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close closes the Redis connection
func (r *redisClient) Close() error {
	return r.client.Close()
}

type noopClient struct{}

// NewNoopClient returns a RedisClient that stores nothing
func NewNoopClient() RedisClient {
	return noopClient{}
}

func (noopClient) Get(ctx context.Context, key string) (string, error) { return "", ErrMiss }
func (noopClient) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return nil
}
func (noopClient) Delete(ctx context.Context, key string) error { return nil }
func (noopClient) Close() error                                 { return nil }
