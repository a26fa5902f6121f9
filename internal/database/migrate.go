package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_initial.up.sql
var initialMigrationSQL string

//go:embed migrations/002_seed_rbac.up.sql
var seedRBACSQL string

var requiredTables = []string{
	"users",
	"roles",
	"permissions",
	"role_permissions",
	"user_roles",
	"user_permissions",
	"sessions",
	"password_resets",
}

func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasAllRequiredTables(ctx)
	if err != nil {
		return fmt.Errorf("check existing tables: %w", err)
	}

	if !exists {
		slog.Info("database schema missing tables; applying initial migration")
		if _, err := db.Pool.Exec(ctx, initialMigrationSQL); err != nil {
			return fmt.Errorf("apply initial migration: %w", err)
		}

		exists, err = db.hasAllRequiredTables(ctx)
		if err != nil {
			return fmt.Errorf("re-check tables after migration: %w", err)
		}

		if !exists {
			return fmt.Errorf("schema initialization incomplete: required tables are still missing")
		}
	}

	if err := db.seedRBAC(ctx); err != nil {
		return fmt.Errorf("apply rbac seed: %w", err)
	}

	slog.Info("database schema ensured")
	return nil
}

// seedRBAC installs the default roles and permissions once, while the roles table is empty.
func (db *DB) seedRBAC(ctx context.Context) error {
	var roleCount int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles`).Scan(&roleCount); err != nil {
		return fmt.Errorf("count roles: %w", err)
	}

	if roleCount > 0 {
		return nil
	}

	slog.Info("seeding default roles and permissions")
	if _, err := db.Pool.Exec(ctx, seedRBACSQL); err != nil {
		return fmt.Errorf("exec seed SQL: %w", err)
	}

	return nil
}

func (db *DB) hasAllRequiredTables(ctx context.Context) (bool, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name = ANY($1)
	`, requiredTables).Scan(&count)
	if err != nil {
		return false, err
	}

	return count == len(requiredTables), nil
}
