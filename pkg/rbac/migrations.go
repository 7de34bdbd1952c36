package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all authorization schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					role_id VARCHAR(64) NOT NULL,
					tenant_id VARCHAR(64) NOT NULL,
					role_code VARCHAR(100) NOT NULL,
					role_name VARCHAR(50) NOT NULL,
					role_desc VARCHAR(200),
					role_type VARCHAR(20) NOT NULL DEFAULT 'BUSINESS',
					status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
					built_in BOOLEAN NOT NULL DEFAULT FALSE,
					data_scope VARCHAR(50),
					dept_id VARCHAR(64),
					order_index INT NOT NULL DEFAULT 0,
					parent_role_id VARCHAR(64),
					role_level INT NOT NULL DEFAULT 1,
					role_path TEXT NOT NULL,
					inherit_parent_permissions BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by VARCHAR(64),
					updated_by VARCHAR(64),
					PRIMARY KEY (tenant_id, role_id),
					UNIQUE (tenant_id, role_code)
				);

				CREATE INDEX idx_roles_parent ON roles(tenant_id, parent_role_id);
				CREATE INDEX idx_roles_level ON roles(tenant_id, role_level);
			`,
		},
		{
			Version:     2,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					permission_id VARCHAR(64) NOT NULL,
					tenant_id VARCHAR(64) NOT NULL,
					permission_code VARCHAR(100) NOT NULL,
					permission_name VARCHAR(100) NOT NULL,
					permission_type VARCHAR(20) NOT NULL DEFAULT 'API',
					resource_path VARCHAR(255),
					http_method VARCHAR(10),
					status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
					order_index INT,
					PRIMARY KEY (tenant_id, permission_id),
					UNIQUE (tenant_id, permission_code)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create menus table",
			SQL: `
				CREATE TABLE IF NOT EXISTS menus (
					menu_id VARCHAR(64) NOT NULL,
					tenant_id VARCHAR(64) NOT NULL,
					menu_code VARCHAR(100) NOT NULL,
					menu_name VARCHAR(100) NOT NULL,
					parent_menu_id VARCHAR(64),
					menu_path VARCHAR(255),
					component VARCHAR(255),
					icon VARCHAR(100),
					order_index INT,
					PRIMARY KEY (tenant_id, menu_id),
					UNIQUE (tenant_id, menu_code)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					tenant_id VARCHAR(64) NOT NULL,
					role_id VARCHAR(64) NOT NULL,
					permission_id VARCHAR(64) NOT NULL,
					PRIMARY KEY (tenant_id, role_id, permission_id)
				);

				CREATE INDEX idx_role_permissions_role ON role_permissions(tenant_id, role_id);
			`,
		},
		{
			Version:     5,
			Description: "Create role_menus table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_menus (
					tenant_id VARCHAR(64) NOT NULL,
					role_id VARCHAR(64) NOT NULL,
					menu_id VARCHAR(64) NOT NULL,
					PRIMARY KEY (tenant_id, role_id, menu_id)
				);

				CREATE INDEX idx_role_menus_role ON role_menus(tenant_id, role_id);
			`,
		},
		{
			Version:     6,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					tenant_id VARCHAR(64) NOT NULL,
					user_id VARCHAR(64) NOT NULL,
					role_id VARCHAR(64) NOT NULL,
					granted_by VARCHAR(64),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (tenant_id, user_id, role_id)
				);

				CREATE INDEX idx_user_roles_user ON user_roles(tenant_id, user_id);
				CREATE INDEX idx_user_roles_role ON user_roles(tenant_id, role_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
