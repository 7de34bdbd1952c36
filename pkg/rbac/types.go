package rbac

import (
	"strings"
	"time"
)

// RoleType classifies how a role was introduced into the system.
type RoleType string

const (
	RoleTypeSystem   RoleType = "SYSTEM"
	RoleTypeBusiness RoleType = "BUSINESS"
	RoleTypeCustom   RoleType = "CUSTOM"
)

// RoleStatus represents whether a role is usable for authorization.
type RoleStatus string

const (
	RoleStatusActive   RoleStatus = "ACTIVE"
	RoleStatusInactive RoleStatus = "INACTIVE"
)

// PermissionType classifies the surface a permission guards.
type PermissionType string

const (
	PermissionTypeAPI    PermissionType = "API"
	PermissionTypeButton PermissionType = "BUTTON"
	PermissionTypeMenu   PermissionType = "MENU"
)

const (
	// MaxRoleDepth is the maximum number of levels in a role tree.
	MaxRoleDepth = 10

	// MaxRoleNameLen and MaxRoleDescLen bound the user-supplied text fields.
	MaxRoleNameLen = 50
	MaxRoleDescLen = 200

	// PathSeparator joins ancestor role IDs in a materialized path.
	PathSeparator = "/"
)

// Role is a node in a per-tenant role forest.
//
// RolePath is the materialized path: the IDs of every ancestor from the root
// down to and including this role, joined by PathSeparator. RoleLevel is the
// number of segments in RolePath (a root role has level 1). Both fields are
// maintained by the Service; stores persist them verbatim.
type Role struct {
	RoleID   string `json:"role_id"`
	TenantID string `json:"tenant_id"`

	RoleCode   string     `json:"role_code"`
	RoleName   string     `json:"role_name"`
	RoleDesc   string     `json:"role_desc,omitempty"`
	RoleType   RoleType   `json:"role_type"`
	Status     RoleStatus `json:"status"`
	BuiltIn    bool       `json:"built_in"`
	DataScope  string     `json:"data_scope,omitempty"`
	DeptID     string     `json:"dept_id,omitempty"`
	OrderIndex int        `json:"order_index"`

	ParentRoleID             string `json:"parent_role_id,omitempty"`
	RoleLevel                int    `json:"role_level"`
	RolePath                 string `json:"role_path"`
	InheritParentPermissions bool   `json:"inherit_parent_permissions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// NewRole returns a root-level role with the defaults the engine assumes:
// business type, active, inheritance enabled.
func NewRole(tenantID, roleCode, roleName string) *Role {
	return &Role{
		TenantID:                 tenantID,
		RoleCode:                 roleCode,
		RoleName:                 roleName,
		RoleType:                 RoleTypeBusiness,
		Status:                   RoleStatusActive,
		RoleLevel:                1,
		InheritParentPermissions: true,
	}
}

// HasParent reports whether the role is attached under another role.
func (r *Role) HasParent() bool {
	return strings.TrimSpace(r.ParentRoleID) != ""
}

// IsRoot reports whether the role is a root of its tree.
func (r *Role) IsRoot() bool {
	return !r.HasParent()
}

// ShouldInherit reports whether effective-permission resolution may ascend
// past this role to its parent.
func (r *Role) ShouldInherit() bool {
	return r.InheritParentPermissions && r.HasParent()
}

// SetParent attaches the role under parent, recomputing its level and
// materialized path from the parent's current values.
func (r *Role) SetParent(parent *Role) {
	r.ParentRoleID = parent.RoleID
	r.RoleLevel = parent.RoleLevel + 1
	r.RolePath = JoinPath(parent.RolePath, r.RoleID)
}

// MakeRoot detaches the role from any parent.
func (r *Role) MakeRoot() {
	r.ParentRoleID = ""
	r.RoleLevel = 1
	r.RolePath = r.RoleID
}

// PathSegments splits the materialized path into its ancestor IDs.
func (r *Role) PathSegments() []string {
	if r.RolePath == "" {
		return nil
	}
	return strings.Split(r.RolePath, PathSeparator)
}

// PathContains reports whether roleID appears as a segment of the
// materialized path. Segment-wise comparison, not substring matching: one
// role ID must never be mistaken for another that merely contains it.
func (r *Role) PathContains(roleID string) bool {
	for _, seg := range r.PathSegments() {
		if seg == roleID {
			return true
		}
	}
	return false
}

// JoinPath appends a role ID to a parent materialized path.
func JoinPath(parentPath, roleID string) string {
	if strings.TrimSpace(parentPath) == "" {
		return roleID
	}
	return parentPath + PathSeparator + roleID
}

// Permission is a leaf capability descriptor. The hierarchy engine only
// references permissions; it never mutates them.
type Permission struct {
	PermissionID   string         `json:"permission_id"`
	TenantID       string         `json:"tenant_id"`
	PermissionCode string         `json:"permission_code"`
	PermissionName string         `json:"permission_name"`
	PermissionType PermissionType `json:"permission_type"`
	ResourcePath   string         `json:"resource_path,omitempty"`
	HTTPMethod     string         `json:"http_method,omitempty"`
	Status         string         `json:"status"`
	OrderIndex     *int           `json:"order_index,omitempty"`
}

// Menu is a navigation node. Menus form their own tree, but its integrity is
// not this engine's concern; menus are only assigned to roles and inherited
// under the same stop rule as permissions.
type Menu struct {
	MenuID       string `json:"menu_id"`
	TenantID     string `json:"tenant_id"`
	MenuCode     string `json:"menu_code"`
	MenuName     string `json:"menu_name"`
	ParentMenuID string `json:"parent_menu_id,omitempty"`
	MenuPath     string `json:"menu_path,omitempty"`
	Component    string `json:"component,omitempty"`
	Icon         string `json:"icon,omitempty"`
	OrderIndex   *int   `json:"order_index,omitempty"`
}
