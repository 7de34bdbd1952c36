package rbac

import (
	"context"
	"sync"
)

// PermissionCache is the process-wide, tenant-scoped cache of derived
// authorization answers. Two logical namespaces: role effective
// permissions/menus keyed by (tenantID, roleID), and user permission-code
// sets keyed by (tenantID, userID).
//
// The cache is strictly derived and disposable: it may be cleared entirely
// at any time with no correctness loss. Invalidation is explicit and eager;
// there is no TTL. A miss followed by racing puts from concurrent resolvers
// is last-write-wins, which is harmless because both values are computed
// from the same persisted state.
type PermissionCache interface {
	GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, bool, error)
	PutRolePermissions(ctx context.Context, tenantID, roleID string, perms []Permission) error

	GetRoleMenus(ctx context.Context, tenantID, roleID string) ([]Menu, bool, error)
	PutRoleMenus(ctx context.Context, tenantID, roleID string, menus []Menu) error

	GetUserPermissionCodes(ctx context.Context, tenantID, userID string) ([]string, bool, error)
	PutUserPermissionCodes(ctx context.Context, tenantID, userID string, codes []string) error

	// EvictRole drops the cached effective permissions and menus for one role.
	EvictRole(ctx context.Context, tenantID, roleID string) error

	// EvictUser drops the cached permission-code set for one user.
	EvictUser(ctx context.Context, tenantID, userID string) error

	// EvictAllUserPermissions clears the whole user-permission namespace.
	// Used after any mutation that can change an effective-permission
	// answer, because the engine keeps no reverse index of which users
	// hold which role.
	EvictAllUserPermissions(ctx context.Context) error
}

// MemoryCache is an in-process PermissionCache backed by mutex-guarded maps.
// It backs tests and single-node deployments without Redis.
type MemoryCache struct {
	mu        sync.RWMutex
	rolePerms map[string][]Permission
	roleMenus map[string][]Menu
	userPerms map[string][]string
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		rolePerms: make(map[string][]Permission),
		roleMenus: make(map[string][]Menu),
		userPerms: make(map[string][]string),
	}
}

func cacheKey(tenantID, id string) string {
	return tenantID + ":" + id
}

// GetRolePermissions returns the cached effective permission list for a role.
func (c *MemoryCache) GetRolePermissions(_ context.Context, tenantID, roleID string) ([]Permission, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	perms, ok := c.rolePerms[cacheKey(tenantID, roleID)]
	if !ok {
		return nil, false, nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out, true, nil
}

// PutRolePermissions stores the effective permission list for a role.
func (c *MemoryCache) PutRolePermissions(_ context.Context, tenantID, roleID string, perms []Permission) error {
	cp := make([]Permission, len(perms))
	copy(cp, perms)
	c.mu.Lock()
	c.rolePerms[cacheKey(tenantID, roleID)] = cp
	c.mu.Unlock()
	return nil
}

// GetRoleMenus returns the cached effective menu list for a role.
func (c *MemoryCache) GetRoleMenus(_ context.Context, tenantID, roleID string) ([]Menu, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	menus, ok := c.roleMenus[cacheKey(tenantID, roleID)]
	if !ok {
		return nil, false, nil
	}
	out := make([]Menu, len(menus))
	copy(out, menus)
	return out, true, nil
}

// PutRoleMenus stores the effective menu list for a role.
func (c *MemoryCache) PutRoleMenus(_ context.Context, tenantID, roleID string, menus []Menu) error {
	cp := make([]Menu, len(menus))
	copy(cp, menus)
	c.mu.Lock()
	c.roleMenus[cacheKey(tenantID, roleID)] = cp
	c.mu.Unlock()
	return nil
}

// GetUserPermissionCodes returns the cached permission-code set for a user.
func (c *MemoryCache) GetUserPermissionCodes(_ context.Context, tenantID, userID string) ([]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	codes, ok := c.userPerms[cacheKey(tenantID, userID)]
	if !ok {
		return nil, false, nil
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out, true, nil
}

// PutUserPermissionCodes stores the permission-code set for a user.
func (c *MemoryCache) PutUserPermissionCodes(_ context.Context, tenantID, userID string, codes []string) error {
	cp := make([]string, len(codes))
	copy(cp, codes)
	c.mu.Lock()
	c.userPerms[cacheKey(tenantID, userID)] = cp
	c.mu.Unlock()
	return nil
}

// EvictRole drops the cached permissions and menus for one role.
func (c *MemoryCache) EvictRole(_ context.Context, tenantID, roleID string) error {
	key := cacheKey(tenantID, roleID)
	c.mu.Lock()
	delete(c.rolePerms, key)
	delete(c.roleMenus, key)
	c.mu.Unlock()
	return nil
}

// EvictUser drops the cached permission-code set for one user.
func (c *MemoryCache) EvictUser(_ context.Context, tenantID, userID string) error {
	c.mu.Lock()
	delete(c.userPerms, cacheKey(tenantID, userID))
	c.mu.Unlock()
	return nil
}

// EvictAllUserPermissions clears the user-permission namespace.
func (c *MemoryCache) EvictAllUserPermissions(_ context.Context) error {
	c.mu.Lock()
	c.userPerms = make(map[string][]string)
	c.mu.Unlock()
	return nil
}
