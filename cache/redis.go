// Package cache keeps the last recorded price per product so a run can
// report price movements without reading the history back.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPriceCache stores the last recorded price of each product under a TTL.
type RedisPriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPriceCache connects to addr. A zero ttl keeps keys forever.
func NewRedisPriceCache(addr string, ttl time.Duration) *RedisPriceCache {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisPriceCache{client: rdb, ttl: ttl}
}

func (c *RedisPriceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPriceCache) Close() error {
	return c.client.Close()
}

// LastPrice returns the cached price for productID, if any.
func (c *RedisPriceCache) LastPrice(ctx context.Context, productID int64) (float64, bool, error) {
	price, err := c.client.Get(ctx, priceKey(productID)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get last price: %w", err)
	}
	return price, true, nil
}

// SetLastPrice stores price as the latest recorded price for productID.
func (c *RedisPriceCache) SetLastPrice(ctx context.Context, productID int64, price float64) error {
	value := strconv.FormatFloat(price, 'f', -1, 64)
	if err := c.client.Set(ctx, priceKey(productID), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("set last price: %w", err)
	}
	return nil
}

func priceKey(productID int64) string {
	return fmt.Sprintf("price:last:%d", productID)
}

// Direction compares a new price against the previous one.
func Direction(previous float64, known bool, current float64) string {
	switch {
	case !known:
		return "new"
	case current > previous:
		return "up"
	case current < previous:
		return "down"
	default:
		return "unchanged"
	}
}
