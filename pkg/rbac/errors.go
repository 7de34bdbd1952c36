package rbac

import "errors"

// Sentinel errors returned by the Service. Callers match them with errors.Is;
// wrapped messages carry the offending identifiers.
var (
	// ErrDuplicateCode is returned when a role code already exists within
	// the tenant.
	ErrDuplicateCode = errors.New("role code already exists")

	// ErrFieldTooLong is returned when a role name or description exceeds
	// its maximum length.
	ErrFieldTooLong = errors.New("field exceeds maximum length")

	// ErrInvalidHierarchy is returned when a parent assignment would break
	// the tree: missing parent, self-parenting, a cycle, a cross-tenant
	// parent, or exceeding MaxRoleDepth.
	ErrInvalidHierarchy = errors.New("invalid role hierarchy")

	// ErrRoleNotFound is returned when a role ID does not resolve within
	// the tenant.
	ErrRoleNotFound = errors.New("role not found")

	// ErrCascadeIncomplete is returned when the descendant walk of a move
	// fails partway. The surrounding transaction rolls the whole move back,
	// so the persisted tree stays consistent; the move simply did not apply.
	ErrCascadeIncomplete = errors.New("hierarchy cascade incomplete")
)
