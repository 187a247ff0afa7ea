package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinpincloud/internal/types"
)

// ErrCacheMiss is returned by RedisCache.Get for a missing key
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides JSON caching on top of Redis
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyRole is for resolved user roles
	CacheKeyRole CacheKeyType = "role"
	// CacheKeyAdminStats is for the admin dashboard summary
	CacheKeyAdminStats CacheKeyType = "stats"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// RoleCache caches resolved roles by user id
type RoleCache struct {
	cache *CacheService
}

// NewRoleCache creates a role cache on top of a cache service
func NewRoleCache(cache *CacheService) *RoleCache {
	return &RoleCache{cache: cache}
}

// GetRole returns the cached role and whether it was present
func (r *RoleCache) GetRole(ctx context.Context, userID string) (types.Role, bool, error) {
	var role types.Role
	found, err := r.cache.Get(ctx, r.cache.GenerateCacheKey(CacheKeyRole, userID), &role)
	if err != nil || !found {
		return "", false, err
	}
	return role, true, nil
}

// SetRole caches role for userID
func (r *RoleCache) SetRole(ctx context.Context, userID string, role types.Role) error {
	return r.cache.Set(ctx, r.cache.GenerateCacheKey(CacheKeyRole, userID), role)
}

// InvalidateRole drops the cached role of userID
func (r *RoleCache) InvalidateRole(ctx context.Context, userID string) error {
	return r.cache.Invalidate(ctx, r.cache.GenerateCacheKey(CacheKeyRole, userID))
}
