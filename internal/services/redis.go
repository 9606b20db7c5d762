package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/koi-prep/internal/config"
)

// RedisProvider owns the Redis connection used by the quota limiter
type RedisProvider struct {
	BaseProvider
	client *redis.Client
}

// NewRedisProvider connects to Redis and verifies the connection
func NewRedisProvider(ctx context.Context, cfg config.RedisConfig) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("connected to redis", "address", cfg.Address, "db", cfg.DB)

	return &RedisProvider{
		BaseProvider: BaseProvider{serviceType: "redis"},
		client:       client,
	}, nil
}

// Client returns the underlying client
func (p *RedisProvider) Client() *redis.Client {
	return p.client
}

// HealthCheck verifies Redis connectivity
func (p *RedisProvider) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
