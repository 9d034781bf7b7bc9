package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

type cachedStatus struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache implements orders.StatusCache.
type StatusCache struct {
	store cmdable
	now   func() time.Time
}

var _ orders.StatusCache = (*StatusCache)(nil)

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{store: rdb, now: time.Now}
}

func (c *StatusCache) SetStatus(ctx context.Context, orderID int64, status orders.Status) error {
	b, err := json.Marshal(cachedStatus{Status: status, UpdatedAt: c.now().UTC()})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) GetStatus(ctx context.Context, orderID int64) (orders.Status, error) {
	raw, err := c.store.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", orders.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var v cachedStatus
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode cached status: %w", err)
	}
	return v.Status, nil
}

func (c *StatusCache) InvalidateStatus(ctx context.Context, orderID int64) error {
	return c.store.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
