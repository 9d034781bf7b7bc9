package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/config"
	"github.com/redis/go-redis/v9"
)

type cmdable interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// New connects and pings.
func New(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	store   cmdable
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{store: rdb, service: service}
}

// Claim marks id as seen and reports whether this call was the first.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.store.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, id), "1", TTLDedup).Result()
}

// Release forgets id so a redelivery is processed again.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.store.Del(ctx, fmt.Sprintf(KeyDedup, d.service, id)).Err()
}
