package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// queryer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same scan code serves both the pooled store and a transaction view.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore implements RoleStore, PermissionStore, MenuStore and
// UserRoleStore over PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	q  queryer
}

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 20
	}
	if cfg.MinConns == 0 {
		cfg.MinConns = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{db: db, q: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool; used by tests with sqlmock.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for migrations and health checks.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const roleColumns = `role_id, tenant_id, role_code, role_name, role_desc,
	role_type, status, built_in, data_scope, dept_id, order_index,
	parent_role_id, role_level, role_path, inherit_parent_permissions,
	created_at, updated_at, created_by, updated_by`

const permissionColumns = `permission_id, tenant_id, permission_code, permission_name,
	permission_type, resource_path, http_method, status, order_index`

const menuColumns = `menu_id, tenant_id, menu_code, menu_name, parent_menu_id,
	menu_path, component, icon, order_index`

func scanRole(row interface{ Scan(...interface{}) error }) (*Role, error) {
	var role Role
	var roleDesc, dataScope, deptID, parentRoleID, createdBy, updatedBy sql.NullString
	var orderIndex sql.NullInt64

	err := row.Scan(
		&role.RoleID, &role.TenantID, &role.RoleCode, &role.RoleName, &roleDesc,
		&role.RoleType, &role.Status, &role.BuiltIn, &dataScope, &deptID, &orderIndex,
		&parentRoleID, &role.RoleLevel, &role.RolePath, &role.InheritParentPermissions,
		&role.CreatedAt, &role.UpdatedAt, &createdBy, &updatedBy,
	)
	if err != nil {
		return nil, err
	}

	role.RoleDesc = roleDesc.String
	role.DataScope = dataScope.String
	role.DeptID = deptID.String
	role.ParentRoleID = parentRoleID.String
	role.CreatedBy = createdBy.String
	role.UpdatedBy = updatedBy.String
	if orderIndex.Valid {
		role.OrderIndex = int(orderIndex.Int64)
	}
	return &role, nil
}

// GetRole returns the role or ErrRoleNotFound.
func (s *PostgresStore) GetRole(ctx context.Context, tenantID, roleID string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE tenant_id = $1 AND role_id = $2`

	role, err := scanRole(s.q.QueryRowContext(ctx, query, tenantID, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByCode returns the role with the given code or ErrRoleNotFound.
func (s *PostgresStore) GetRoleByCode(ctx context.Context, tenantID, roleCode string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE tenant_id = $1 AND role_code = $2`

	role, err := scanRole(s.q.QueryRowContext(ctx, query, tenantID, roleCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: code %s", ErrRoleNotFound, roleCode)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get role by code: %w", err)
	}
	return role, nil
}

// ListChildren returns the direct children of parentRoleID, ordered by
// order_index then code for deterministic cascades.
func (s *PostgresStore) ListChildren(ctx context.Context, tenantID, parentRoleID string) ([]*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles
		WHERE tenant_id = $1 AND parent_role_id = $2
		ORDER BY order_index, role_code`

	rows, err := s.q.QueryContext(ctx, query, tenantID, parentRoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		children = append(children, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate children: %w", err)
	}
	return children, nil
}

// SaveRole upserts the role record.
func (s *PostgresStore) SaveRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (` + roleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (tenant_id, role_id) DO UPDATE SET
			role_code = EXCLUDED.role_code,
			role_name = EXCLUDED.role_name,
			role_desc = EXCLUDED.role_desc,
			role_type = EXCLUDED.role_type,
			status = EXCLUDED.status,
			built_in = EXCLUDED.built_in,
			data_scope = EXCLUDED.data_scope,
			dept_id = EXCLUDED.dept_id,
			order_index = EXCLUDED.order_index,
			parent_role_id = EXCLUDED.parent_role_id,
			role_level = EXCLUDED.role_level,
			role_path = EXCLUDED.role_path,
			inherit_parent_permissions = EXCLUDED.inherit_parent_permissions,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`

	_, err := s.q.ExecContext(ctx, query,
		role.RoleID, role.TenantID, role.RoleCode, role.RoleName, nullStr(role.RoleDesc),
		string(role.RoleType), string(role.Status), role.BuiltIn, nullStr(role.DataScope),
		nullStr(role.DeptID), role.OrderIndex, nullStr(role.ParentRoleID),
		role.RoleLevel, role.RolePath, role.InheritParentPermissions,
		role.CreatedAt, role.UpdatedAt, nullStr(role.CreatedBy), nullStr(role.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

// InTx runs fn against a transaction-backed view of the store. A non-nil
// error from fn rolls everything back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx RoleStore) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s) // already inside a transaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPermissions resolves ids within the tenant. Unknown IDs are omitted
// from the result, not reported as errors.
func (s *PostgresStore) GetPermissions(ctx context.Context, tenantID string, ids []string) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + permissionColumns + ` FROM permissions
		WHERE tenant_id = $1 AND permission_id = ANY($2)`

	rows, err := s.q.QueryContext(ctx, query, tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// GetRolePermissions returns the permissions directly assigned to the role.
func (s *PostgresStore) GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, error) {
	query := `
		SELECT p.permission_id, p.tenant_id, p.permission_code, p.permission_name,
			p.permission_type, p.resource_path, p.http_method, p.status, p.order_index
		FROM permissions p
		JOIN role_permissions rp ON rp.tenant_id = p.tenant_id AND rp.permission_id = p.permission_id
		WHERE rp.tenant_id = $1 AND rp.role_id = $2
	`

	rows, err := s.q.QueryContext(ctx, query, tenantID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// ReplaceRolePermissions clears and repopulates the role's direct permission
// set inside one transaction.
func (s *PostgresStore) ReplaceRolePermissions(ctx context.Context, tenantID, roleID string, ids []string) error {
	return s.replaceAssignments(ctx, "role_permissions", "permission_id", tenantID, roleID, ids)
}

// GetMenus resolves ids within the tenant, omitting unknown IDs.
func (s *PostgresStore) GetMenus(ctx context.Context, tenantID string, ids []string) ([]Menu, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + menuColumns + ` FROM menus
		WHERE tenant_id = $1 AND menu_id = ANY($2)`

	rows, err := s.q.QueryContext(ctx, query, tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get menus: %w", err)
	}
	defer rows.Close()

	return scanMenus(rows)
}

// GetRoleMenus returns the menus directly assigned to the role.
func (s *PostgresStore) GetRoleMenus(ctx context.Context, tenantID, roleID string) ([]Menu, error) {
	query := `
		SELECT m.menu_id, m.tenant_id, m.menu_code, m.menu_name, m.parent_menu_id,
			m.menu_path, m.component, m.icon, m.order_index
		FROM menus m
		JOIN role_menus rm ON rm.tenant_id = m.tenant_id AND rm.menu_id = m.menu_id
		WHERE rm.tenant_id = $1 AND rm.role_id = $2
	`

	rows, err := s.q.QueryContext(ctx, query, tenantID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role menus: %w", err)
	}
	defer rows.Close()

	return scanMenus(rows)
}

// ReplaceRoleMenus clears and repopulates the role's direct menu set.
func (s *PostgresStore) ReplaceRoleMenus(ctx context.Context, tenantID, roleID string, ids []string) error {
	return s.replaceAssignments(ctx, "role_menus", "menu_id", tenantID, roleID, ids)
}

// GetUserRoleIDs returns the role IDs held by a user.
func (s *PostgresStore) GetUserRoleIDs(ctx context.Context, tenantID, userID string) ([]string, error) {
	query := `SELECT role_id FROM user_roles WHERE tenant_id = $1 AND user_id = $2`

	rows, err := s.q.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) replaceAssignments(ctx context.Context, table, idColumn, tenantID, roleID string, ids []string) error {
	run := func(q queryer) error {
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1 AND role_id = $2", table)
		if _, err := q.ExecContext(ctx, deleteQuery, tenantID, roleID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}

		insertQuery := fmt.Sprintf(
			"INSERT INTO %s (tenant_id, role_id, %s) SELECT $1, $2, unnest($3::text[])",
			table, idColumn,
		)
		if _, err := q.ExecContext(ctx, insertQuery, tenantID, roleID, pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to populate %s: %w", table, err)
		}
		return nil
	}

	// Already transactional when called through an InTx view.
	if _, ok := s.q.(*sql.Tx); ok {
		return run(s.q)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := run(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		var resourcePath, httpMethod sql.NullString
		var orderIndex sql.NullInt64
		err := rows.Scan(&p.PermissionID, &p.TenantID, &p.PermissionCode,
			&p.PermissionName, &p.PermissionType, &resourcePath, &httpMethod,
			&p.Status, &orderIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.ResourcePath = resourcePath.String
		p.HTTPMethod = httpMethod.String
		if orderIndex.Valid {
			v := int(orderIndex.Int64)
			p.OrderIndex = &v
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return perms, nil
}

func scanMenus(rows *sql.Rows) ([]Menu, error) {
	var menus []Menu
	for rows.Next() {
		var m Menu
		var parentMenuID, menuPath, component, icon sql.NullString
		var orderIndex sql.NullInt64
		err := rows.Scan(&m.MenuID, &m.TenantID, &m.MenuCode, &m.MenuName,
			&parentMenuID, &menuPath, &component, &icon, &orderIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		m.ParentMenuID = parentMenuID.String
		m.MenuPath = menuPath.String
		m.Component = component.String
		m.Icon = icon.String
		if orderIndex.Valid {
			v := int(orderIndex.Int64)
			m.OrderIndex = &v
		}
		menus = append(menus, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menus: %w", err)
	}
	return menus, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
