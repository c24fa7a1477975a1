// README: Redis cache-aside layer in front of the rate catalog; invalidated by bumping a generation key.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vitecab/internal/logger"
)

const cachePrefix = "vitecab:rates:"

type Cache struct {
	next Catalog
	rdb  *redis.Client
	ttl  time.Duration
	log  *logger.Logger
}

func NewCache(next Catalog, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *Cache) DistanceRate(ctx context.Context, vt VehicleType) (*DistanceRate, error) {
	return cached(ctx, c, "distance:"+string(vt), func() (*DistanceRate, error) {
		return c.next.DistanceRate(ctx, vt)
	})
}

func (c *Cache) RouteRate(ctx context.Context, routeID int64, vt VehicleType) (*RouteRate, error) {
	key := fmt.Sprintf("route:%d:%s", routeID, vt)
	return cached(ctx, c, key, func() (*RouteRate, error) {
		return c.next.RouteRate(ctx, routeID, vt)
	})
}

func (c *Cache) HourlyRate(ctx context.Context, vt VehicleType) (*HourlyRate, error) {
	return cached(ctx, c, "hourly:"+string(vt), func() (*HourlyRate, error) {
		return c.next.HourlyRate(ctx, vt)
	})
}

func (c *Cache) ActiveExtras(ctx context.Context) ([]ExtraRate, error) {
	return cached(ctx, c, "extras", func() ([]ExtraRate, error) {
		return c.next.ActiveExtras(ctx)
	})
}

// Invalidate orphans every cached entry; they expire on their own TTL.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, cachePrefix+"gen").Err()
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, cachePrefix+"gen").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// cached reads through redis. Redis failures fall back to the loader, and
// loader errors (including not-found) are never cached.
func cached[T any](ctx context.Context, c *Cache, key string, load func() (T, error)) (T, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.WithError(err).Warn("rate cache unavailable, reading store")
		return load()
	}
	full := cachePrefix + strconv.FormatInt(gen, 10) + ":" + key

	raw, err := c.rdb.Get(ctx, full).Bytes()
	switch {
	case err == nil:
		var out T
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			return out, nil
		}
		c.log.WithField("key", full).Warn("rate cache entry corrupt, reloading")
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).Warn("rate cache read failed, reading store")
		return load()
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if b, merr := json.Marshal(v); merr == nil {
		if serr := c.rdb.Set(ctx, full, b, c.ttl).Err(); serr != nil {
			c.log.WithError(serr).Warn("rate cache write failed")
		}
	}
	return v, nil
}
