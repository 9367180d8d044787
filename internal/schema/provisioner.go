package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Provisioner 租户 schema 开通原语
// 创建 schema → 执行迁移 → 校验至少产生一张业务表
// 失败时由调用方（开通流水线）负责补偿（Drop）
type Provisioner struct {
	db       *sql.DB
	migrator *Migrator
	logger   *zap.Logger
}

func NewProvisioner(db *sql.DB, migrator *Migrator, logger *zap.Logger) *Provisioner {
	return &Provisioner{db: db, migrator: migrator, logger: logger}
}

// CreateAndMigrate 创建租户 schema 并应用全部待执行迁移
// 幂等：schema 已存在、迁移已应用时可安全重跑（at-least-once 事件投递）
func (p *Provisioner) CreateAndMigrate(ctx context.Context, tenantID string) (string, error) {
	schemaName := Name(tenantID)

	p.logger.Info("Creating tenant schema", zap.String("schema", schemaName))

	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schemaName)))
	if err != nil {
		return "", fmt.Errorf("failed to create schema %s: %w", schemaName, err)
	}

	applied, err := p.migrator.ApplyPending(ctx, schemaName)
	if err != nil {
		return schemaName, fmt.Errorf("failed to migrate schema %s: %w", schemaName, err)
	}

	if err := p.verify(ctx, schemaName); err != nil {
		return schemaName, err
	}

	p.logger.Info("Tenant schema ready",
		zap.String("schema", schemaName),
		zap.Int("migrations_applied", applied),
	)
	return schemaName, nil
}

// Drop 删除租户 schema（开通失败补偿）
func (p *Provisioner) Drop(ctx context.Context, schemaName string) error {
	if schemaName == "" || schemaName == SharedSchema {
		return fmt.Errorf("refusing to drop schema: %q", schemaName)
	}

	p.logger.Warn("Dropping tenant schema", zap.String("schema", schemaName))

	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(schemaName)))
	if err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", schemaName, err)
	}
	return nil
}

// verify 校验迁移确实产生了业务表（不含迁移账本表）
func (p *Provisioner) verify(ctx context.Context, schemaName string) error {
	var tableCount int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = $1 AND table_name <> 'schema_migrations'`,
		schemaName,
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("failed to verify schema %s: %w", schemaName, err)
	}
	if tableCount == 0 {
		return fmt.Errorf("schema %s created but has no tables", schemaName)
	}
	return nil
}
