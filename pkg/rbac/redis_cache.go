package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Key prefixes for the cache namespaces. Bulk eviction of the user namespace
// works by pattern, so user keys must stay under their own prefix.
const (
	rolePermsKeyPrefix = "authz:roleperms:"
	roleMenusKeyPrefix = "authz:rolemenus:"
	userPermsKeyPrefix = "authz:userperms:"
)

// RedisCache is a PermissionCache backed by Redis. Entries carry no TTL;
// consistency comes entirely from the explicit evictions the Service issues
// after every store write.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis using a URL of the form
// redis://[:password@]host:port/db and verifies connectivity.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client. The caller owns the
// client's lifecycle.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		// Corrupt entry: drop it and treat as a miss so the resolver
		// repopulates from the store.
		c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *RedisCache) put(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.client.Set(ctx, key, data, 0).Err()
}

// GetRolePermissions returns the cached effective permission list for a role.
func (c *RedisCache) GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, bool, error) {
	var perms []Permission
	ok, err := c.get(ctx, rolePermsKeyPrefix+cacheKey(tenantID, roleID), &perms)
	if !ok || err != nil {
		return nil, false, err
	}
	return perms, true, nil
}

// PutRolePermissions stores the effective permission list for a role.
func (c *RedisCache) PutRolePermissions(ctx context.Context, tenantID, roleID string, perms []Permission) error {
	return c.put(ctx, rolePermsKeyPrefix+cacheKey(tenantID, roleID), perms)
}

// GetRoleMenus returns the cached effective menu list for a role.
func (c *RedisCache) GetRoleMenus(ctx context.Context, tenantID, roleID string) ([]Menu, bool, error) {
	var menus []Menu
	ok, err := c.get(ctx, roleMenusKeyPrefix+cacheKey(tenantID, roleID), &menus)
	if !ok || err != nil {
		return nil, false, err
	}
	return menus, true, nil
}

// PutRoleMenus stores the effective menu list for a role.
func (c *RedisCache) PutRoleMenus(ctx context.Context, tenantID, roleID string, menus []Menu) error {
	return c.put(ctx, roleMenusKeyPrefix+cacheKey(tenantID, roleID), menus)
}

// GetUserPermissionCodes returns the cached permission-code set for a user.
func (c *RedisCache) GetUserPermissionCodes(ctx context.Context, tenantID, userID string) ([]string, bool, error) {
	var codes []string
	ok, err := c.get(ctx, userPermsKeyPrefix+cacheKey(tenantID, userID), &codes)
	if !ok || err != nil {
		return nil, false, err
	}
	return codes, true, nil
}

// PutUserPermissionCodes stores the permission-code set for a user.
func (c *RedisCache) PutUserPermissionCodes(ctx context.Context, tenantID, userID string, codes []string) error {
	return c.put(ctx, userPermsKeyPrefix+cacheKey(tenantID, userID), codes)
}

// EvictRole drops the cached permissions and menus for one role.
func (c *RedisCache) EvictRole(ctx context.Context, tenantID, roleID string) error {
	key := cacheKey(tenantID, roleID)
	return c.client.Del(ctx, rolePermsKeyPrefix+key, roleMenusKeyPrefix+key).Err()
}

// EvictUser drops the cached permission-code set for one user.
func (c *RedisCache) EvictUser(ctx context.Context, tenantID, userID string) error {
	return c.client.Del(ctx, userPermsKeyPrefix+cacheKey(tenantID, userID)).Err()
}

// EvictAllUserPermissions clears the user-permission namespace with a SCAN
// over its key prefix.
func (c *RedisCache) EvictAllUserPermissions(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, userPermsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for user permission keys: %w", err)
	}
	return nil
}
