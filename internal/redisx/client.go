package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ferremas/orders/internal/orders"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

type cachedStatus struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache is a read-through cache of order status. The database stays
// authoritative; a miss or a Redis failure just means a database read.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (orders.Status, bool, error) {
	b, err := c.rdb.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var cs cachedStatus
	if err := json.Unmarshal(b, &cs); err != nil {
		return "", false, fmt.Errorf("decode cached status: %w", err)
	}
	return cs.Status, true, nil
}

func (c *StatusCache) Set(ctx context.Context, orderID int64, s orders.Status) error {
	b, err := json.Marshal(cachedStatus{Status: s, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, OrderStatusKey(orderID), b, c.ttl).Err()
}

// Dedup records ids of already-processed events for one consumer service.
type Dedup struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service, ttl: TTLDedup}
}

// Claim returns true the first time id is seen within the TTL.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(d.service, id), 1, d.ttl).Result()
}

// Release forgets id so a failed event can be processed again on redelivery.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, DedupKey(d.service, id)).Err()
}

// AlertOnce returns true when no low-stock alert is outstanding for the
// product at the branch, and marks one as outstanding.
func (d *Dedup) AlertOnce(ctx context.Context, productID, branchID int64) (bool, error) {
	return d.rdb.SetNX(ctx, LowStockKey(productID, branchID), 1, TTLLowStockAlert).Result()
}

// ClearAlert drops the outstanding mark once stock is back above threshold.
func (d *Dedup) ClearAlert(ctx context.Context, productID, branchID int64) error {
	return d.rdb.Del(ctx, LowStockKey(productID, branchID)).Err()
}
