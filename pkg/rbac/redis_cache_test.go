package rbac

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestRedisCache_RolePermissionsRoundtrip(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	_, ok, err := cache.GetRolePermissions(ctx, "t1", "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	perms := []Permission{{
		PermissionID:   "p1",
		TenantID:       "t1",
		PermissionCode: "doc:read",
		PermissionName: "Read documents",
		PermissionType: PermissionTypeAPI,
		OrderIndex:     intPtr(3),
	}}
	require.NoError(t, cache.PutRolePermissions(ctx, "t1", "r1", perms))

	got, ok, err := cache.GetRolePermissions(ctx, "t1", "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, perms, got)
}

func TestRedisCache_MenusAndUserCodes(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	menus := []Menu{{MenuID: "m1", TenantID: "t1", MenuCode: "dashboard", MenuName: "Dashboard"}}
	require.NoError(t, cache.PutRoleMenus(ctx, "t1", "r1", menus))
	gotMenus, ok, err := cache.GetRoleMenus(ctx, "t1", "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, menus, gotMenus)

	require.NoError(t, cache.PutUserPermissionCodes(ctx, "t1", "u1", []string{"doc:read", "doc:write"}))
	codes, ok, err := cache.GetUserPermissionCodes(ctx, "t1", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"doc:read", "doc:write"}, codes)
}

func TestRedisCache_EvictRole(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.PutRolePermissions(ctx, "t1", "r1", []Permission{{PermissionID: "p1"}}))
	require.NoError(t, cache.PutRoleMenus(ctx, "t1", "r1", []Menu{{MenuID: "m1"}}))
	require.NoError(t, cache.PutRolePermissions(ctx, "t1", "r2", []Permission{{PermissionID: "p2"}}))

	require.NoError(t, cache.EvictRole(ctx, "t1", "r1"))

	_, ok, _ := cache.GetRolePermissions(ctx, "t1", "r1")
	assert.False(t, ok)
	_, ok, _ = cache.GetRoleMenus(ctx, "t1", "r1")
	assert.False(t, ok)
	_, ok, _ = cache.GetRolePermissions(ctx, "t1", "r2")
	assert.True(t, ok)
}

func TestRedisCache_EvictAllUserPermissions(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		require.NoError(t, cache.PutUserPermissionCodes(ctx, "t1", u, []string{"doc:read"}))
	}
	require.NoError(t, cache.PutUserPermissionCodes(ctx, "t2", "u1", []string{"doc:write"}))
	require.NoError(t, cache.PutRolePermissions(ctx, "t1", "r1", []Permission{{PermissionID: "p1"}}))

	require.NoError(t, cache.EvictAllUserPermissions(ctx))

	for _, u := range []string{"u1", "u2", "u3"} {
		_, ok, err := cache.GetUserPermissionCodes(ctx, "t1", u)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, ok, _ := cache.GetUserPermissionCodes(ctx, "t2", "u1")
	assert.False(t, ok)

	// The role namespace is untouched by the bulk eviction.
	_, ok, _ = cache.GetRolePermissions(ctx, "t1", "r1")
	assert.True(t, ok)
}

func TestRedisCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	key := rolePermsKeyPrefix + cacheKey("t1", "r1")
	require.NoError(t, mr.Set(key, "not-json"))

	_, ok, err := cache.GetRolePermissions(ctx, "t1", "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The corrupt entry is dropped so the next resolve can repopulate it.
	assert.False(t, mr.Exists(key))
}

func TestRedisCache_EndToEndWithService(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	store := NewMemoryStore()

	svc, err := NewService(ServiceConfig{
		Roles:       store,
		Permissions: store,
		Menus:       store,
		UserRoles:   store,
		Cache:       cache,
	})
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, NewRole("t1", "ops", "Operations"), "tester")
	require.NoError(t, err)
	store.AddPermission(Permission{PermissionID: "p1", TenantID: "t1", PermissionCode: "doc:read"})
	require.NoError(t, svc.AssignPermissions(ctx, "t1", role.RoleID, []string{"p1"}, nil, "tester"))

	perms, err := svc.GetEffectivePermissions(ctx, "t1", role.RoleID)
	require.NoError(t, err)
	require.Len(t, perms, 1)

	// The answer is now materialized in Redis.
	cached, ok, err := cache.GetRolePermissions(ctx, "t1", role.RoleID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, perms, cached)
}
