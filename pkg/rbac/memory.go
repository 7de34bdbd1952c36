package rbac

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process implementation of RoleStore, PermissionStore,
// MenuStore and UserRoleStore. It backs tests and single-node development
// deployments without PostgreSQL.
//
// InTx holds the store lock for the duration of the transaction and restores
// a snapshot of the role table on failure, so a hierarchy cascade is
// all-or-nothing and concurrent readers never observe a half-applied move.
type MemoryStore struct {
	mu sync.RWMutex

	roles       map[string]*Role       // tenant:roleID -> role
	permissions map[string]*Permission // tenant:permissionID -> permission
	menus       map[string]*Menu       // tenant:menuID -> menu
	rolePerms   map[string][]string    // tenant:roleID -> permission IDs
	roleMenus   map[string][]string    // tenant:roleID -> menu IDs
	userRoles   map[string][]string    // tenant:userID -> role IDs
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[string]*Role),
		permissions: make(map[string]*Permission),
		menus:       make(map[string]*Menu),
		rolePerms:   make(map[string][]string),
		roleMenus:   make(map[string][]string),
		userRoles:   make(map[string][]string),
	}
}

func storeKey(tenantID, id string) string {
	return tenantID + ":" + id
}

// GetRole returns the role or ErrRoleNotFound.
func (s *MemoryStore) GetRole(ctx context.Context, tenantID, roleID string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRoleLocked(tenantID, roleID)
}

func (s *MemoryStore) getRoleLocked(tenantID, roleID string) (*Role, error) {
	role, ok := s.roles[storeKey(tenantID, roleID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	cp := *role
	return &cp, nil
}

// GetRoleByCode returns the role with the given code or ErrRoleNotFound.
func (s *MemoryStore) GetRoleByCode(ctx context.Context, tenantID, roleCode string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRoleByCodeLocked(tenantID, roleCode)
}

func (s *MemoryStore) getRoleByCodeLocked(tenantID, roleCode string) (*Role, error) {
	for _, role := range s.roles {
		if role.TenantID == tenantID && role.RoleCode == roleCode {
			cp := *role
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: code %s", ErrRoleNotFound, roleCode)
}

// ListChildren returns the direct children of parentRoleID.
func (s *MemoryStore) ListChildren(ctx context.Context, tenantID, parentRoleID string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listChildrenLocked(tenantID, parentRoleID)
}

func (s *MemoryStore) listChildrenLocked(tenantID, parentRoleID string) ([]*Role, error) {
	var children []*Role
	for _, role := range s.roles {
		if role.TenantID == tenantID && role.ParentRoleID == parentRoleID {
			cp := *role
			children = append(children, &cp)
		}
	}
	return children, nil
}

// SaveRole upserts the role record.
func (s *MemoryStore) SaveRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRoleLocked(role)
}

func (s *MemoryStore) saveRoleLocked(role *Role) error {
	if role.RoleID == "" || role.TenantID == "" {
		return fmt.Errorf("role ID and tenant ID are required")
	}
	cp := *role
	s.roles[storeKey(role.TenantID, role.RoleID)] = &cp
	return nil
}

// InTx runs fn against a transactional view. The role table is snapshotted
// up front and restored if fn fails.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx RoleStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*Role, len(s.roles))
	for k, v := range s.roles {
		cp := *v
		snapshot[k] = &cp
	}

	if err := fn(&memoryTx{store: s}); err != nil {
		s.roles = snapshot
		return err
	}
	return nil
}

// memoryTx exposes the role table without re-locking; the outer InTx holds
// the write lock.
type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) GetRole(ctx context.Context, tenantID, roleID string) (*Role, error) {
	return t.store.getRoleLocked(tenantID, roleID)
}

func (t *memoryTx) GetRoleByCode(ctx context.Context, tenantID, roleCode string) (*Role, error) {
	return t.store.getRoleByCodeLocked(tenantID, roleCode)
}

func (t *memoryTx) ListChildren(ctx context.Context, tenantID, parentRoleID string) ([]*Role, error) {
	return t.store.listChildrenLocked(tenantID, parentRoleID)
}

func (t *memoryTx) SaveRole(ctx context.Context, role *Role) error {
	return t.store.saveRoleLocked(role)
}

func (t *memoryTx) InTx(ctx context.Context, fn func(tx RoleStore) error) error {
	return fn(t) // already inside the transaction
}

// AddPermission registers a permission entity.
func (s *MemoryStore) AddPermission(perm Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := perm
	s.permissions[storeKey(perm.TenantID, perm.PermissionID)] = &cp
}

// AddMenu registers a menu entity.
func (s *MemoryStore) AddMenu(menu Menu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := menu
	s.menus[storeKey(menu.TenantID, menu.MenuID)] = &cp
}

// SetUserRoles replaces the role IDs held by a user.
func (s *MemoryStore) SetUserRoles(tenantID, userID string, roleIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(roleIDs))
	copy(cp, roleIDs)
	s.userRoles[storeKey(tenantID, userID)] = cp
}

// GetPermissions resolves ids within the tenant, omitting unknown IDs.
func (s *MemoryStore) GetPermissions(ctx context.Context, tenantID string, ids []string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var perms []Permission
	for _, id := range ids {
		if p, ok := s.permissions[storeKey(tenantID, id)]; ok {
			perms = append(perms, *p)
		}
	}
	return perms, nil
}

// GetRolePermissions returns the permissions directly assigned to the role.
func (s *MemoryStore) GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var perms []Permission
	for _, id := range s.rolePerms[storeKey(tenantID, roleID)] {
		if p, ok := s.permissions[storeKey(tenantID, id)]; ok {
			perms = append(perms, *p)
		}
	}
	return perms, nil
}

// ReplaceRolePermissions clears and repopulates the role's direct permission set.
func (s *MemoryStore) ReplaceRolePermissions(ctx context.Context, tenantID, roleID string, ids []string) error {
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.mu.Lock()
	s.rolePerms[storeKey(tenantID, roleID)] = cp
	s.mu.Unlock()
	return nil
}

// GetMenus resolves ids within the tenant, omitting unknown IDs.
func (s *MemoryStore) GetMenus(ctx context.Context, tenantID string, ids []string) ([]Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var menus []Menu
	for _, id := range ids {
		if m, ok := s.menus[storeKey(tenantID, id)]; ok {
			menus = append(menus, *m)
		}
	}
	return menus, nil
}

// GetRoleMenus returns the menus directly assigned to the role.
func (s *MemoryStore) GetRoleMenus(ctx context.Context, tenantID, roleID string) ([]Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var menus []Menu
	for _, id := range s.roleMenus[storeKey(tenantID, roleID)] {
		if m, ok := s.menus[storeKey(tenantID, id)]; ok {
			menus = append(menus, *m)
		}
	}
	return menus, nil
}

// ReplaceRoleMenus clears and repopulates the role's direct menu set.
func (s *MemoryStore) ReplaceRoleMenus(ctx context.Context, tenantID, roleID string, ids []string) error {
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.mu.Lock()
	s.roleMenus[storeKey(tenantID, roleID)] = cp
	s.mu.Unlock()
	return nil
}

// GetUserRoleIDs returns the role IDs held by a user.
func (s *MemoryStore) GetUserRoleIDs(ctx context.Context, tenantID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.userRoles[storeKey(tenantID, userID)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}
