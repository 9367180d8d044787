package main

import (
	"context"
	"os"

	"crm-auth/internal/config"
	"crm-auth/internal/database"
	"crm-auth/internal/logger"
	"crm-auth/internal/repository"
	"crm-auth/internal/schema"

	"go.uber.org/zap"
)

// 对全部已开通租户执行待应用的 schema 迁移
// 单个租户失败不中断整体，最后汇总并以非零码退出
func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crm-auth-migrate")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	migrator := schema.NewMigrator(db, log)
	tenantsRepo := repository.NewPostgresTenantsRepository(db)

	if _, err := migrator.MigrateShared(ctx); err != nil {
		log.Fatal("Failed to migrate shared schema", zap.Error(err))
	}

	page := 1
	const size = 200
	migrated, failed := 0, 0
	for {
		tenants, _, err := tenantsRepo.List(ctx, repository.TenantFilters{}, page, size)
		if err != nil {
			log.Fatal("Failed to list tenants", zap.Error(err))
		}
		if len(tenants) == 0 {
			break
		}

		for _, tenant := range tenants {
			if !tenant.SchemaName.Valid || tenant.SchemaName.String == "" {
				continue
			}
			applied, err := migrator.ApplyPending(ctx, tenant.SchemaName.String)
			if err != nil {
				failed++
				log.Error("Tenant migration failed",
					zap.String("tenant_id", tenant.TenantID),
					zap.String("schema", tenant.SchemaName.String),
					zap.Error(err),
				)
				continue
			}
			if applied > 0 {
				migrated++
				log.Info("Tenant migrated",
					zap.String("tenant_id", tenant.TenantID),
					zap.String("schema", tenant.SchemaName.String),
					zap.Int("migrations_applied", applied),
				)
			}
		}

		if len(tenants) < size {
			break
		}
		page++
	}

	log.Info("Tenant migration run complete",
		zap.Int("migrated", migrated),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}
