package rbac

import "context"

// RoleStore is the durable mapping from role identifier to role record.
// All lookups are tenant-scoped; implementations must never return a role
// from another tenant.
type RoleStore interface {
	// GetRole returns the role or ErrRoleNotFound.
	GetRole(ctx context.Context, tenantID, roleID string) (*Role, error)

	// GetRoleByCode returns the role with the given code or ErrRoleNotFound.
	GetRoleByCode(ctx context.Context, tenantID, roleCode string) (*Role, error)

	// ListChildren returns the direct children of parentRoleID.
	ListChildren(ctx context.Context, tenantID, parentRoleID string) ([]*Role, error)

	// SaveRole upserts the role record.
	SaveRole(ctx context.Context, role *Role) error

	// InTx runs fn against a transactional view of the store. If fn returns
	// an error every write made inside fn is rolled back. The hierarchy
	// cascade relies on this being all-or-nothing.
	InTx(ctx context.Context, fn func(tx RoleStore) error) error
}

// PermissionStore resolves permission records and maintains the set of
// permissions directly assigned to a role.
type PermissionStore interface {
	// GetPermissions resolves ids within the tenant. IDs that do not
	// resolve are omitted from the result, not errored.
	GetPermissions(ctx context.Context, tenantID string, ids []string) ([]Permission, error)

	// GetRolePermissions returns the permissions directly assigned to the
	// role, excluding anything inherited.
	GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, error)

	// ReplaceRolePermissions clears the role's direct permission set and
	// repopulates it from ids. Full replace, never a merge.
	ReplaceRolePermissions(ctx context.Context, tenantID, roleID string, ids []string) error
}

// MenuStore mirrors PermissionStore for menu assignments.
type MenuStore interface {
	GetMenus(ctx context.Context, tenantID string, ids []string) ([]Menu, error)
	GetRoleMenus(ctx context.Context, tenantID, roleID string) ([]Menu, error)
	ReplaceRoleMenus(ctx context.Context, tenantID, roleID string, ids []string) error
}

// UserRoleStore maps users to the roles they hold. The engine only reads
// this mapping; assignment of roles to users is owned elsewhere.
type UserRoleStore interface {
	GetUserRoleIDs(ctx context.Context, tenantID, userID string) ([]string, error)
}
