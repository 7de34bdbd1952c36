// Package rbac implements the tenant-scoped role hierarchy and authorization
// engine: role creation and re-parenting over a materialized-path role tree,
// wholesale permission/menu assignment, and resolution of effective
// (inherited) permission sets with an explicitly invalidated cache.
//
// Roles form a per-tenant forest. Each role carries a materialized path (the
// ancestor IDs from root to self joined by "/") and a level (the number of
// path segments). Both are denormalized values owned by the Service: they are
// recomputed by an explicit cascade on every structural mutation and never
// derived lazily at read time.
//
// Permission inheritance uses a selective-stop rule: resolution climbs the
// ancestor chain while the current node has inheritance enabled, absorbing
// each ancestor's directly assigned permissions. An ancestor with inheritance
// disabled still contributes its own direct permissions but blocks any
// further ascent beyond it.
package rbac
