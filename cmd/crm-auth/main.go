package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crm-auth/internal/auth"
	"crm-auth/internal/config"
	"crm-auth/internal/database"
	"crm-auth/internal/events"
	httpapi "crm-auth/internal/http"
	"crm-auth/internal/logger"
	"crm-auth/internal/repository"
	"crm-auth/internal/schema"
	"crm-auth/internal/service"
	"crm-auth/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crm-auth")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)

	// 存储层
	tenantsRepo := repository.NewPostgresTenantsRepository(db)
	rolesRepo := repository.NewPostgresRolesRepository(db)
	usersRepo := repository.NewPostgresUsersRepository()

	migrator := schema.NewMigrator(db, log)
	provisioner := schema.NewProvisioner(db, migrator, log)
	binder := service.WrapBinder(schema.NewBinder(db, log))

	// 事件总线
	bus := events.NewBus(redisClient, cfg.Provisioning.Stream, cfg.Provisioning.ConsumerGroup, log)

	// 服务层
	jwtService := auth.NewJwtService(cfg.JWT)
	registration := service.NewRegistrationService(tenantsRepo, rolesRepo, bus, log)
	authService := service.NewAuthService(tenantsRepo, rolesRepo, usersRepo, binder, jwtService, log)
	permissions := service.NewPermissionService(rolesRepo, kv, log)
	roles := service.NewRoleService(rolesRepo, permissions, log)
	users := service.NewUserService(rolesRepo, usersRepo, binder, permissions, log)
	tenants := service.NewTenantService(tenantsRepo, log)
	notifier := service.NewNotifier(cfg.Provisioning.WebhookURL, log)
	provisioning := service.NewProvisioningService(
		tenantsRepo, rolesRepo, usersRepo, provisioner, binder, bus, notifier, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动引导：共享 schema 迁移、权限/角色种子、master 租户
	bootstrapper := service.NewBootstrapper(migrator, tenantsRepo, rolesRepo, registration, cfg.Bootstrap, log)
	if err := bootstrapper.Run(ctx); err != nil {
		log.Fatal("Bootstrap failed", zap.Error(err))
	}
	if err := bus.EnsureGroup(ctx); err != nil {
		log.Fatal("Failed to ensure consumer group", zap.Error(err))
	}

	// 开通流水线 workers
	var workersWG sync.WaitGroup
	workersWG.Add(1)
	go func() {
		defer workersWG.Done()
		provisioning.Run(ctx, cfg.Provisioning.Workers)
	}()

	// HTTP 面
	authn := httpapi.NewAuthenticator(authService, log)
	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterAuthRoutes(
		httpapi.NewAuthHandler(registration, authService, tenants, permissions, log), authn)
	router.RegisterAdminTenantRoutes(httpapi.NewTenantsHandler(tenants), authn)
	router.RegisterAdminRoleRoutes(httpapi.NewRolesHandler(roles), authn, permissions)
	router.RegisterAdminUserRoutes(httpapi.NewUsersHandler(users), authn, permissions)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	workersWG.Wait()
}
