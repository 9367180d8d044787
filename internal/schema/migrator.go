package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/shared/*.sql
var sharedMigrations embed.FS

//go:embed migrations/tenant/*.sql
var tenantMigrations embed.FS

// Migrator 幂等迁移执行器
// 每个 schema 维护自己的 schema_migrations 账本表，
// ApplyPending 只执行账本中不存在的脚本（按文件名排序）
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewMigrator(db *sql.DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// MigrateShared 迁移共享 schema（public）
// 服务启动时调用
func (m *Migrator) MigrateShared(ctx context.Context) (int, error) {
	return m.apply(ctx, SharedSchema, sharedMigrations, "migrations/shared")
}

// ApplyPending 对指定租户 schema 执行所有未应用的迁移脚本
// 返回本次应用的脚本数；幂等，可安全重跑
func (m *Migrator) ApplyPending(ctx context.Context, schemaName string) (int, error) {
	if schemaName == "" || schemaName == SharedSchema {
		return 0, fmt.Errorf("invalid tenant schema name: %q", schemaName)
	}
	return m.apply(ctx, schemaName, tenantMigrations, "migrations/tenant")
}

func (m *Migrator) apply(ctx context.Context, schemaName string, fsys embed.FS, dir string) (int, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration scripts: %w", err)
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, e.Name())
	}
	sort.Strings(versions)

	quoted := pq.QuoteIdentifier(schemaName)

	// 账本表
	_, err = m.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, quoted))
	if err != nil {
		return 0, fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	applied := 0
	for _, version := range versions {
		var exists bool
		err := m.db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT EXISTS(SELECT 1 FROM %s.schema_migrations WHERE version = $1)`, quoted),
			version,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		script, err := fsys.ReadFile(dir + "/" + version)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", version, err)
		}

		// 每个脚本一个事务：search_path 指向目标 schema 后执行
		// public 保留在末位，扩展函数（pgcrypto 等）仍可解析
		searchPath := quoted
		if schemaName != SharedSchema {
			searchPath = quoted + ", " + SharedSchema
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("failed to begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+searchPath); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to set search_path for %s: %w", schemaName, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("migration %s failed on %s: %w", version, schemaName, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s.schema_migrations (version) VALUES ($1)`, quoted), version); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("failed to commit migration %s: %w", version, err)
		}

		applied++
		m.logger.Info("Applied migration",
			zap.String("schema", schemaName),
			zap.String("version", version),
		)
	}

	return applied, nil
}
