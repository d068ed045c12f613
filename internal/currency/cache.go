package currency

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedRateSource serves rate tables from redis and refreshes them from the
// wrapped source on a miss. Cache failures never fail a lookup.
type CachedRateSource struct {
	next RateSource
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCachedRateSource wraps next with a redis cache holding each table for ttl.
func NewCachedRateSource(next RateSource, rdb *redis.Client, ttl time.Duration) *CachedRateSource {
	return &CachedRateSource{next: next, rdb: rdb, ttl: ttl}
}

func cacheKey(base string) string {
	return "rates:" + base
}

// GetRates returns the cached table for base, fetching it on a miss.
func (c *CachedRateSource) GetRates(ctx context.Context, base string) (map[string]float64, error) {
	var rates map[string]float64
	found, err := getCache(ctx, c.rdb, cacheKey(base), &rates)
	if err != nil {
		slog.Warn("Rate cache read failed", "base", base, "error", err)
	}
	if found && len(rates) > 0 {
		return rates, nil
	}

	rates, err = c.next.GetRates(ctx, base)
	if err != nil {
		return nil, err
	}

	if err := setCache(ctx, c.rdb, cacheKey(base), rates, c.ttl); err != nil {
		slog.Warn("Rate cache write failed", "base", base, "error", err)
	}
	return rates, nil
}

// getCache retrieves a value from redis and unmarshals it into dest.
func getCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(val), dest)
}

// setCache stores value as JSON with the given TTL.
func setCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}
