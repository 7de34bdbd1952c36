package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/lockplane/authcore/pkg/events"
	"github.com/lockplane/authcore/pkg/observability"
)

const entityCacheSize = 1024

// ServiceConfig carries the collaborators a Service needs. Roles,
// Permissions, Menus and Cache are required; UserRoles, Events, Logger and
// Metrics are optional.
type ServiceConfig struct {
	Roles       RoleStore
	Permissions PermissionStore
	Menus       MenuStore
	UserRoles   UserRoleStore
	Cache       PermissionCache
	Events      events.Sink
	Logger      *logrus.Entry
	Metrics     *observability.Metrics
}

// Service is the role hierarchy engine. It validates and persists role
// creation, permission/menu assignment and re-parenting, maintains the
// materialized path and level of every role, resolves effective (inherited)
// permission and menu sets, and keeps the permission cache coherent across
// every mutation.
type Service struct {
	roles     RoleStore
	perms     PermissionStore
	menus     MenuStore
	userRoles UserRoleStore
	cache     PermissionCache
	events    events.Sink
	log       *logrus.Entry
	metrics   *observability.Metrics

	// Point caches for role and permission entities. Strictly derived
	// state, dropped on every mutation that touches the entity.
	roleEntities *lru.Cache[string, Role]
	permEntities *lru.Cache[string, Permission]

	sf singleflight.Group
}

// NewService creates a Service from its collaborators.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Roles == nil || cfg.Permissions == nil || cfg.Menus == nil || cfg.Cache == nil {
		return nil, fmt.Errorf("rbac: role store, permission store, menu store and cache are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	roleEntities, err := lru.New[string, Role](entityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("rbac: creating role entity cache: %w", err)
	}
	permEntities, err := lru.New[string, Permission](entityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("rbac: creating permission entity cache: %w", err)
	}

	return &Service{
		roles:        cfg.Roles,
		perms:        cfg.Permissions,
		menus:        cfg.Menus,
		userRoles:    cfg.UserRoles,
		cache:        cfg.Cache,
		events:       cfg.Events,
		log:          logger,
		metrics:      cfg.Metrics,
		roleEntities: roleEntities,
		permEntities: permEntities,
	}, nil
}

// DefaultRoleType is the type assigned to roles created without one.
func (s *Service) DefaultRoleType() RoleType {
	return RoleTypeBusiness
}

// CreateRole validates and persists a new role, root or child. The role's
// materialized path and level are computed from the parent before the first
// persist; a role starts with an empty permission set, so no cache writes
// happen here.
//
// Returns ErrDuplicateCode, ErrFieldTooLong or ErrInvalidHierarchy on
// validation failure; nothing is persisted in that case.
func (s *Service) CreateRole(ctx context.Context, role *Role, operator string) (*Role, error) {
	if role == nil || strings.TrimSpace(role.TenantID) == "" ||
		strings.TrimSpace(role.RoleCode) == "" || strings.TrimSpace(role.RoleName) == "" {
		return nil, fmt.Errorf("rbac: tenant ID, role code and role name are required")
	}

	if err := s.validateRoleFields(role); err != nil {
		return nil, err
	}

	if _, err := s.roles.GetRoleByCode(ctx, role.TenantID, role.RoleCode); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, role.RoleCode)
	} else if !errors.Is(err, ErrRoleNotFound) {
		return nil, fmt.Errorf("checking role code uniqueness: %w", err)
	}

	if role.RoleID == "" {
		role.RoleID = uuid.NewString()
	}
	if role.RoleType == "" {
		role.RoleType = s.DefaultRoleType()
	}
	if role.Status == "" {
		role.Status = RoleStatusActive
	}

	if role.HasParent() {
		parent, err := s.getRole(ctx, role.TenantID, role.ParentRoleID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent %s does not exist", ErrInvalidHierarchy, role.ParentRoleID)
		}
		if !s.validateParent(role, parent) {
			return nil, fmt.Errorf("%w: cannot attach %s under %s", ErrInvalidHierarchy, role.RoleID, parent.RoleID)
		}
		role.SetParent(parent)
	} else {
		role.MakeRoot()
	}

	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.CreatedBy = operator
	role.UpdatedBy = operator

	if err := s.roles.SaveRole(ctx, role); err != nil {
		s.countMutation("create", "error")
		return nil, fmt.Errorf("persisting role: %w", err)
	}
	s.roleEntities.Add(storeKey(role.TenantID, role.RoleID), *role)
	s.countMutation("create", "ok")

	s.log.WithFields(logrus.Fields{
		"tenant_id": role.TenantID,
		"role_id":   role.RoleID,
		"role_code": role.RoleCode,
		"level":     role.RoleLevel,
	}).Info("role created")

	s.publish(ctx, events.New(events.TypeRoleCreated, role.TenantID, operator, map[string]interface{}{
		"role_id":   role.RoleID,
		"role_code": role.RoleCode,
		"role_name": role.RoleName,
		"role_type": string(role.RoleType),
		"dept_id":   role.DeptID,
	}))

	return role, nil
}

// UpdateRole persists changes to a role's descriptive fields. Hierarchy
// fields are not touched here; use MoveRole for re-parenting.
func (s *Service) UpdateRole(ctx context.Context, role *Role, operator string) error {
	if err := s.validateRoleFields(role); err != nil {
		return err
	}

	current, err := s.getRole(ctx, role.TenantID, role.RoleID)
	if err != nil {
		return err
	}

	inheritChanged := current.InheritParentPermissions != role.InheritParentPermissions

	current.RoleName = role.RoleName
	current.RoleDesc = role.RoleDesc
	current.Status = role.Status
	current.DataScope = role.DataScope
	current.OrderIndex = role.OrderIndex
	current.InheritParentPermissions = role.InheritParentPermissions
	current.UpdatedAt = time.Now()
	current.UpdatedBy = operator

	if err := s.roles.SaveRole(ctx, current); err != nil {
		s.countMutation("update", "error")
		return fmt.Errorf("persisting role: %w", err)
	}
	s.roleEntities.Add(storeKey(current.TenantID, current.RoleID), *current)
	s.countMutation("update", "ok")

	// Toggling inheritance changes the inherited answer of every
	// descendant, not just this role.
	affected := []string{current.RoleID}
	if inheritChanged {
		if err := s.collectDescendantIDs(ctx, current.TenantID, current.RoleID, &affected); err != nil {
			return err
		}
	}
	if err := s.evictAfterMutation(ctx, current.TenantID, affected); err != nil {
		return err
	}
	*role = *current
	return nil
}

// collectDescendantIDs appends the IDs of every descendant of roleID.
// Read-only pre-order walk over the persisted child sets.
func (s *Service) collectDescendantIDs(ctx context.Context, tenantID, roleID string, ids *[]string) error {
	children, err := s.roles.ListChildren(ctx, tenantID, roleID)
	if err != nil {
		return fmt.Errorf("listing children of %s: %w", roleID, err)
	}
	for _, child := range children {
		*ids = append(*ids, child.RoleID)
		if err := s.collectDescendantIDs(ctx, tenantID, child.RoleID, ids); err != nil {
			return err
		}
	}
	return nil
}

// AssignPermissions replaces the role's direct permission and menu
// associations wholesale. IDs that do not resolve within the role's tenant
// are dropped silently, mirroring the relaxed contract of the source system.
//
// After persisting, the role's cached effective entry is evicted and the
// whole user-permission namespace is cleared: the engine keeps no reverse
// index of which users hold the role.
func (s *Service) AssignPermissions(ctx context.Context, tenantID, roleID string, permissionIDs, menuIDs []string, operator string) error {
	role, err := s.getRole(ctx, tenantID, roleID)
	if err != nil {
		return err
	}

	perms, err := s.resolvePermissions(ctx, tenantID, permissionIDs)
	if err != nil {
		return fmt.Errorf("resolving permissions: %w", err)
	}
	menus, err := s.menus.GetMenus(ctx, tenantID, menuIDs)
	if err != nil {
		return fmt.Errorf("resolving menus: %w", err)
	}

	if dropped := len(permissionIDs) - len(perms); dropped > 0 {
		s.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"role_id":   roleID,
			"dropped":   dropped,
		}).Warn("unresolvable permission IDs dropped from assignment")
	}

	assignedPermIDs := make([]string, 0, len(perms))
	for _, p := range perms {
		assignedPermIDs = append(assignedPermIDs, p.PermissionID)
	}
	assignedMenuIDs := make([]string, 0, len(menus))
	for _, m := range menus {
		assignedMenuIDs = append(assignedMenuIDs, m.MenuID)
	}

	if err := s.perms.ReplaceRolePermissions(ctx, tenantID, roleID, assignedPermIDs); err != nil {
		s.countMutation("assign", "error")
		return fmt.Errorf("replacing role permissions: %w", err)
	}
	if err := s.menus.ReplaceRoleMenus(ctx, tenantID, roleID, assignedMenuIDs); err != nil {
		s.countMutation("assign", "error")
		return fmt.Errorf("replacing role menus: %w", err)
	}

	role.UpdatedAt = time.Now()
	role.UpdatedBy = operator
	if err := s.roles.SaveRole(ctx, role); err != nil {
		s.countMutation("assign", "error")
		return fmt.Errorf("persisting role: %w", err)
	}
	s.roleEntities.Add(storeKey(tenantID, roleID), *role)
	s.countMutation("assign", "ok")

	// Invalidate only after every write has landed, so a racing reader
	// cannot repopulate the cache with pre-mutation data.
	if err := s.evictAfterMutation(ctx, tenantID, []string{roleID}); err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TypeRolePermissionsAssigned, tenantID, operator, map[string]interface{}{
		"role_id":        roleID,
		"role_name":      role.RoleName,
		"permission_ids": assignedPermIDs,
		"menu_ids":       assignedMenuIDs,
		"data_scope":     role.DataScope,
	}))

	return nil
}

// ValidateRoleHierarchy reports whether candidateParentID is a legal parent
// for role. Pure validation, no mutation. A blank parent is always legal
// (the role becomes a root).
func (s *Service) ValidateRoleHierarchy(ctx context.Context, role *Role, candidateParentID string) bool {
	if strings.TrimSpace(candidateParentID) == "" {
		return true
	}
	if role.RoleID == candidateParentID {
		return false
	}
	parent, err := s.getRole(ctx, role.TenantID, candidateParentID)
	if err != nil {
		return false
	}
	return s.validateParent(role, parent)
}

// validateParent checks the structural rules against an already-loaded
// parent: same tenant, not self, no cycle through the parent's path, and
// the depth bound.
func (s *Service) validateParent(role, parent *Role) bool {
	if parent.TenantID != role.TenantID {
		return false
	}
	if parent.RoleID == role.RoleID {
		return false
	}
	// Attaching under a role whose path already contains us would create a
	// cycle (the candidate parent is our own descendant).
	if role.RoleID != "" && parent.PathContains(role.RoleID) {
		return false
	}
	if parent.RoleLevel >= MaxRoleDepth {
		return false
	}
	return true
}

// MoveRole re-parents a role (blank newParentID makes it a root) and
// cascades the new level/path to every descendant inside one store
// transaction. Concurrent readers observe either the pre-move or the
// post-move tree, never a mix.
//
// Cache eviction for the moved role and every walked descendant, plus the
// bulk user-namespace eviction, happens only after the transaction commits.
func (s *Service) MoveRole(ctx context.Context, tenantID, roleID, newParentID, operator string) error {
	role, err := s.getRole(ctx, tenantID, roleID)
	if err != nil {
		return err
	}

	if !s.ValidateRoleHierarchy(ctx, role, newParentID) {
		return fmt.Errorf("%w: cannot move %s under %q", ErrInvalidHierarchy, roleID, newParentID)
	}

	affected := []string{roleID}
	err = s.roles.InTx(ctx, func(tx RoleStore) error {
		// Reload inside the transaction so the cascade starts from the
		// current persisted state.
		moved, err := tx.GetRole(ctx, tenantID, roleID)
		if err != nil {
			return err
		}

		if strings.TrimSpace(newParentID) != "" {
			parent, err := tx.GetRole(ctx, tenantID, newParentID)
			if err != nil {
				return fmt.Errorf("%w: parent %s does not exist", ErrInvalidHierarchy, newParentID)
			}
			moved.SetParent(parent)
		} else {
			moved.MakeRoot()
		}
		moved.UpdatedAt = time.Now()
		moved.UpdatedBy = operator

		if err := tx.SaveRole(ctx, moved); err != nil {
			return fmt.Errorf("persisting moved role: %w", err)
		}
		return s.cascade(ctx, tx, moved, &affected)
	})
	if err != nil {
		s.countMutation("move", "error")
		return err
	}
	s.countMutation("move", "ok")
	s.observeCascade(len(affected))

	for _, id := range affected {
		s.roleEntities.Remove(storeKey(tenantID, id))
	}
	if err := s.evictAfterMutation(ctx, tenantID, affected); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"role_id":     roleID,
		"new_parent":  newParentID,
		"descendants": len(affected) - 1,
	}).Info("role moved")

	s.publish(ctx, events.New(events.TypeRoleMoved, tenantID, operator, map[string]interface{}{
		"role_id":        roleID,
		"new_parent_id":  newParentID,
		"affected_roles": affected,
	}))

	return nil
}

// cascade walks the current persisted child set of parent in pre-order,
// recomputing each child's level and path from the parent's new values and
// persisting it before recursing. Runs inside the move transaction; a
// failure aborts the whole move.
func (s *Service) cascade(ctx context.Context, tx RoleStore, parent *Role, affected *[]string) error {
	children, err := tx.ListChildren(ctx, parent.TenantID, parent.RoleID)
	if err != nil {
		return fmt.Errorf("%w: listing children of %s: %v", ErrCascadeIncomplete, parent.RoleID, err)
	}

	for _, child := range children {
		child.RoleLevel = parent.RoleLevel + 1
		child.RolePath = JoinPath(parent.RolePath, child.RoleID)
		if err := tx.SaveRole(ctx, child); err != nil {
			return fmt.Errorf("%w: updating descendant %s: %v", ErrCascadeIncomplete, child.RoleID, err)
		}
		*affected = append(*affected, child.RoleID)
		if err := s.cascade(ctx, tx, child, affected); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateRoleFields(role *Role) error {
	if len(role.RoleName) > MaxRoleNameLen {
		return fmt.Errorf("%w: role name longer than %d characters", ErrFieldTooLong, MaxRoleNameLen)
	}
	if len(role.RoleDesc) > MaxRoleDescLen {
		return fmt.Errorf("%w: role description longer than %d characters", ErrFieldTooLong, MaxRoleDescLen)
	}
	return nil
}

// evictAfterMutation drops the cached effective entries for the given roles
// and clears the user-permission namespace. Always called after the store
// write, never before.
func (s *Service) evictAfterMutation(ctx context.Context, tenantID string, roleIDs []string) error {
	for _, id := range roleIDs {
		if err := s.cache.EvictRole(ctx, tenantID, id); err != nil {
			return fmt.Errorf("evicting role cache entry %s: %w", id, err)
		}
		s.countEviction("role")
	}
	if err := s.cache.EvictAllUserPermissions(ctx); err != nil {
		return fmt.Errorf("evicting user permission cache: %w", err)
	}
	s.countEviction("user_bulk")
	return nil
}

// GetRole returns one role record.
func (s *Service) GetRole(ctx context.Context, tenantID, roleID string) (*Role, error) {
	return s.getRole(ctx, tenantID, roleID)
}

// getRole loads a role through the entity point cache.
func (s *Service) getRole(ctx context.Context, tenantID, roleID string) (*Role, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, fmt.Errorf("%w: empty role ID", ErrRoleNotFound)
	}
	key := storeKey(tenantID, roleID)
	if cached, ok := s.roleEntities.Get(key); ok {
		cp := cached
		return &cp, nil
	}
	role, err := s.roles.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	s.roleEntities.Add(key, *role)
	return role, nil
}

// resolvePermissions resolves permission IDs through the entity point
// cache, fetching only the misses from the store. Unknown IDs stay dropped.
func (s *Service) resolvePermissions(ctx context.Context, tenantID string, ids []string) ([]Permission, error) {
	resolved := make([]Permission, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if p, ok := s.permEntities.Get(storeKey(tenantID, id)); ok {
			resolved = append(resolved, p)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		fetched, err := s.perms.GetPermissions(ctx, tenantID, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range fetched {
			s.permEntities.Add(storeKey(tenantID, p.PermissionID), p)
			resolved = append(resolved, p)
		}
	}
	return resolved, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.events == nil {
		return
	}
	// Fire-and-forget: a publish failure never rolls back the committed
	// mutation.
	s.events.Publish(ctx, evt)
}

func (s *Service) countMutation(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.HierarchyMutationsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func (s *Service) observeCascade(size int) {
	if s.metrics != nil {
		s.metrics.CascadeFanout.Observe(float64(size))
	}
}

func (s *Service) countEviction(namespace string) {
	if s.metrics != nil {
		s.metrics.CacheEvictionsTotal.WithLabelValues(namespace).Inc()
	}
}
