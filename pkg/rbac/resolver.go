package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// GetEffectivePermissions returns the role's effective permission list: its
// own directly assigned permissions plus everything inherited from its
// ancestor chain under the selective-stop rule. Cache-first; on a miss the
// result is recomputed from the store and the cache repopulated.
//
// Concurrent misses for the same key are collapsed with singleflight. That
// is an optimization, not a correctness requirement: racing resolvers would
// compute identical values from the same persisted state.
func (s *Service) GetEffectivePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, error) {
	if perms, ok, err := s.cache.GetRolePermissions(ctx, tenantID, roleID); err != nil {
		return nil, fmt.Errorf("reading permission cache: %w", err)
	} else if ok {
		s.countCacheHit("role_permissions")
		return perms, nil
	}
	s.countCacheMiss("role_permissions")

	v, err, _ := s.sf.Do("perms:"+tenantID+":"+roleID, func() (interface{}, error) {
		start := time.Now()
		perms, err := s.resolveEffectivePermissions(ctx, tenantID, roleID)
		if err != nil {
			return nil, err
		}
		s.observeResolve("permissions", time.Since(start))

		if err := s.cache.PutRolePermissions(ctx, tenantID, roleID, perms); err != nil {
			return nil, fmt.Errorf("writing permission cache: %w", err)
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Permission), nil
}

func (s *Service) resolveEffectivePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, error) {
	var all []Permission
	err := s.walkInheritanceChain(ctx, tenantID, roleID, func(ctx context.Context, node *Role) error {
		direct, err := s.perms.GetRolePermissions(ctx, tenantID, node.RoleID)
		if err != nil {
			return fmt.Errorf("loading direct permissions of %s: %w", node.RoleID, err)
		}
		all = append(all, direct...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	perms := dedupePermissions(all)
	sortPermissions(perms)
	return perms, nil
}

// GetEffectiveMenus returns the role's effective menu list under the same
// inheritance algorithm and stop rule as permissions, sorted by
// (order index, menu code).
func (s *Service) GetEffectiveMenus(ctx context.Context, tenantID, roleID string) ([]Menu, error) {
	if menus, ok, err := s.cache.GetRoleMenus(ctx, tenantID, roleID); err != nil {
		return nil, fmt.Errorf("reading menu cache: %w", err)
	} else if ok {
		s.countCacheHit("role_menus")
		return menus, nil
	}
	s.countCacheMiss("role_menus")

	v, err, _ := s.sf.Do("menus:"+tenantID+":"+roleID, func() (interface{}, error) {
		start := time.Now()
		var all []Menu
		err := s.walkInheritanceChain(ctx, tenantID, roleID, func(ctx context.Context, node *Role) error {
			direct, err := s.menus.GetRoleMenus(ctx, tenantID, node.RoleID)
			if err != nil {
				return fmt.Errorf("loading direct menus of %s: %w", node.RoleID, err)
			}
			all = append(all, direct...)
			return nil
		})
		if err != nil {
			return nil, err
		}

		menus := dedupeMenus(all)
		sortMenus(menus)
		s.observeResolve("menus", time.Since(start))

		if err := s.cache.PutRoleMenus(ctx, tenantID, roleID, menus); err != nil {
			return nil, fmt.Errorf("writing menu cache: %w", err)
		}
		return menus, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Menu), nil
}

// walkInheritanceChain visits the role and then its ancestors under the
// selective-stop rule: ascent continues past a node only while that node
// has inheritance enabled, but the node reached always contributes. A
// visited set guards against walking a corrupted (cyclic) chain forever.
func (s *Service) walkInheritanceChain(ctx context.Context, tenantID, roleID string, visit func(context.Context, *Role) error) error {
	role, err := s.getRole(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if err := visit(ctx, role); err != nil {
		return err
	}

	visited := map[string]bool{role.RoleID: true}
	current := role
	for current.ShouldInherit() {
		parent, err := s.getRole(ctx, tenantID, current.ParentRoleID)
		if err != nil {
			// A dangling parent reference ends the chain rather than
			// failing the whole resolution.
			s.log.WithField("role_id", current.RoleID).
				WithField("parent_role_id", current.ParentRoleID).
				Warn("inheritance chain references missing parent")
			break
		}
		if visited[parent.RoleID] {
			s.log.WithField("role_id", parent.RoleID).
				Warn("inheritance chain contains a cycle; stopping ascent")
			break
		}
		visited[parent.RoleID] = true

		if err := visit(ctx, parent); err != nil {
			return err
		}
		current = parent
	}
	return nil
}

// GetUserPermissionCodes returns the union of effective permission codes
// over every role the user holds, cached in the user-permission namespace.
// This is the entry the bulk eviction after each mutation protects.
func (s *Service) GetUserPermissionCodes(ctx context.Context, tenantID, userID string) ([]string, error) {
	if s.userRoles == nil {
		return nil, fmt.Errorf("rbac: no user-role store configured")
	}

	if codes, ok, err := s.cache.GetUserPermissionCodes(ctx, tenantID, userID); err != nil {
		return nil, fmt.Errorf("reading user permission cache: %w", err)
	} else if ok {
		s.countCacheHit("user_permissions")
		return codes, nil
	}
	s.countCacheMiss("user_permissions")

	roleIDs, err := s.userRoles.GetUserRoleIDs(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user roles: %w", err)
	}

	seen := make(map[string]bool)
	codes := make([]string, 0)
	for _, roleID := range roleIDs {
		perms, err := s.GetEffectivePermissions(ctx, tenantID, roleID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if !seen[p.PermissionCode] {
				seen[p.PermissionCode] = true
				codes = append(codes, p.PermissionCode)
			}
		}
	}
	sort.Strings(codes)

	if err := s.cache.PutUserPermissionCodes(ctx, tenantID, userID, codes); err != nil {
		return nil, fmt.Errorf("writing user permission cache: %w", err)
	}
	return codes, nil
}

func dedupePermissions(perms []Permission) []Permission {
	seen := make(map[string]bool, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if !seen[p.PermissionID] {
			seen[p.PermissionID] = true
			out = append(out, p)
		}
	}
	return out
}

func dedupeMenus(menus []Menu) []Menu {
	seen := make(map[string]bool, len(menus))
	out := make([]Menu, 0, len(menus))
	for _, m := range menus {
		if !seen[m.MenuID] {
			seen[m.MenuID] = true
			out = append(out, m)
		}
	}
	return out
}

// sortPermissions orders by order index ascending with nil last, then by
// permission code, for deterministic presentation.
func sortPermissions(perms []Permission) {
	sort.SliceStable(perms, func(i, j int) bool {
		if c := compareOrderIndex(perms[i].OrderIndex, perms[j].OrderIndex); c != 0 {
			return c < 0
		}
		return perms[i].PermissionCode < perms[j].PermissionCode
	})
}

func sortMenus(menus []Menu) {
	sort.SliceStable(menus, func(i, j int) bool {
		if c := compareOrderIndex(menus[i].OrderIndex, menus[j].OrderIndex); c != 0 {
			return c < 0
		}
		return menus[i].MenuCode < menus[j].MenuCode
	})
}

func compareOrderIndex(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func (s *Service) countCacheHit(namespace string) {
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(namespace).Inc()
	}
}

func (s *Service) countCacheMiss(namespace string) {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(namespace).Inc()
	}
}

func (s *Service) observeResolve(kind string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ResolveDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}
