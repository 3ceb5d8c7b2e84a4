package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/go-redis/redis/v8"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// ClaimIdempotencyKey returns true the first time key is seen within the TTL.
func (r *RedisRepository) ClaimIdempotencyKey(ctx context.Context, scope, key string) (bool, error) {
	ttl := r.config.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ok, err := r.client.SetNX(ctx, idempotencyKey(scope, key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// ReleaseIdempotencyKey lets a failed request be retried with the same key.
func (r *RedisRepository) ReleaseIdempotencyKey(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, idempotencyKey(scope, key)).Err()
}
