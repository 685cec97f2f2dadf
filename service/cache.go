package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"tenantcrm/models"
	"tenantcrm/monitoring"
	"tenantcrm/utils"
)

const defaultCacheTTL = 5 * time.Minute

// TenantCachePrefix prefixes every cache key of a tenant.
func TenantCachePrefix(tenantID uint) string {
	return fmt.Sprintf("crm:t:%d:", tenantID)
}

// EntityCacheKey is the read cache key of a single record.
func EntityCacheKey(tenantID uint, entity models.EntityType, id uint) string {
	return fmt.Sprintf("%s%s:%d", TenantCachePrefix(tenantID), entity, id)
}

// BoardCacheKey is the read cache key of a tenant's lead board.
func BoardCacheKey(tenantID uint) string {
	return TenantCachePrefix(tenantID) + "leads:board"
}

// jsonCache is a read-through Redis cache. Concurrent misses for the same
// key share one load.
type jsonCache struct {
	client utils.RedisClient
	ttl    time.Duration
	group  singleflight.Group
}

func newJSONCache(client utils.RedisClient, ttl time.Duration) *jsonCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &jsonCache{client: client, ttl: ttl}
}

func cached[T any](ctx context.Context, c *jsonCache, name, key string, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		raw, err := c.client.GetFromCache(ctx, key)
		switch {
		case err == nil:
			var out T
			if err := json.Unmarshal([]byte(raw), &out); err == nil {
				monitoring.CacheLookups.WithLabelValues(name, "hit").Inc()
				return out, nil
			}
		case !errors.Is(err, utils.ErrCacheMiss):
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		monitoring.CacheLookups.WithLabelValues(name, "miss").Inc()

		out, err := load()
		if err != nil {
			return out, err
		}
		if data, err := json.Marshal(out); err == nil {
			if err := c.client.SetToCache(ctx, key, string(data), c.ttl); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *jsonCache) invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.client.DeleteFromCache(ctx, keys...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}
