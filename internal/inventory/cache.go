package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/innkeep/innkeep/internal/shared"
)

// AvailabilityCache keeps calendar reads in Redis under a version per
// property and room type. Booking paths never read through it.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewAvailabilityCache instantiates the cache helper.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AvailabilityCache{client: client, ttl: ttl}
}

// Version returns the current calendar version, zero when never bumped.
func (c *AvailabilityCache) Version(ctx context.Context, propertyID, roomTypeID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, shared.AvailabilityVersionKey(propertyID, roomTypeID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Bump invalidates every cached range for the pair.
func (c *AvailabilityCache) Bump(ctx context.Context, propertyID, roomTypeID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, shared.AvailabilityVersionKey(propertyID, roomTypeID)).Err()
}

// Calendar returns the cached range or fills it with loader. Concurrent misses
// for the same key share one load.
func (c *AvailabilityCache) Calendar(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time, loader func(context.Context) ([]Record, error)) ([]Record, error) {
	if loader == nil {
		return nil, errors.New("inventory cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx, propertyID, roomTypeID)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("inventory:%d:%d:v%d:%s:%s", propertyID, roomTypeID, ver,
		start.Format(shared.DateLayout), end.Format(shared.DateLayout))
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var records []Record
		if err := json.Unmarshal(payload, &records); err == nil {
			return records, nil
		}
	}
	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		records, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(records); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Record), nil
}
