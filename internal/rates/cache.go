package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-pi-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps the current rate under rate:current:{currency}.
// Redis errors degrade to a cache miss.
type RedisCache struct {
	RDB redis.Cmdable
	Log *slog.Logger
}

func (c *RedisCache) Get(ctx context.Context, currency string) (*Rate, bool) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(redisx.KeyRateCurrent, currency)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger().Warn("rate cache get", "err", err)
		}
		return nil, false
	}
	var r Rate
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (c *RedisCache) Set(ctx context.Context, r Rate) {
	b, _ := json.Marshal(r)
	if err := c.RDB.Set(ctx, fmt.Sprintf(redisx.KeyRateCurrent, r.Currency), b, redisx.TTLRateCache).Err(); err != nil {
		c.logger().Warn("rate cache set", "err", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, currency string) {
	if err := c.RDB.Del(ctx, fmt.Sprintf(redisx.KeyRateCurrent, currency)).Err(); err != nil {
		c.logger().Warn("rate cache invalidate", "err", err)
	}
}

func (c *RedisCache) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}
