package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"crm-auth/internal/domain"
	"crm-auth/internal/events"
	"crm-auth/internal/repository"
	"crm-auth/internal/schema"
	"crm-auth/internal/tenantctx"

	"go.uber.org/zap"
)

// TenantProvisioner 租户 schema 开通原语（*schema.Provisioner 的抽象，便于测试）
type TenantProvisioner interface {
	CreateAndMigrate(ctx context.Context, tenantID string) (string, error)
	Drop(ctx context.Context, schemaName string) error
}

// BoundConn 已绑定租户 schema 的工作单元连接（*schema.BoundConn 的抽象）
type BoundConn interface {
	Conn() *sql.Conn
	Release()
}

// SchemaBinder 工作单元 schema 绑定（*schema.Binder 的抽象）
type SchemaBinder interface {
	Bind(ctx context.Context, tenantID string) (BoundConn, error)
}

type binderAdapter struct {
	binder *schema.Binder
}

// WrapBinder 把 *schema.Binder 适配为 SchemaBinder
func WrapBinder(b *schema.Binder) SchemaBinder {
	return binderAdapter{binder: b}
}

func (a binderAdapter) Bind(ctx context.Context, tenantID string) (BoundConn, error) {
	bound, err := a.binder.Bind(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// EventSource 开通流水线的事件来源（*events.Bus 的抽象）
type EventSource interface {
	Consume(ctx context.Context, consumer string, count int64) ([]events.Message, error)
	Ack(ctx context.Context, messageID string) error
}

// ProvisioningService 异步租户开通流水线
// 消费 TenantCreated 事件，按补偿式工作流执行：
// 创建并迁移 schema → 在租户上下文内创建管理员 → 标记 ACTIVE；
// 任一步失败则标记 PROVISIONING_FAILED 并删除已建 schema，
// 补偿动作自身的失败只记日志（终态仍是 FAILED，不悬挂 PROVISIONING）
type ProvisioningService struct {
	tenantsRepo repository.TenantsRepository
	rolesRepo   repository.RolesRepository
	usersRepo   repository.UsersRepository
	provisioner TenantProvisioner
	binder      SchemaBinder
	source      EventSource
	notifier    *Notifier
	logger      *zap.Logger
}

func NewProvisioningService(
	tenantsRepo repository.TenantsRepository,
	rolesRepo repository.RolesRepository,
	usersRepo repository.UsersRepository,
	provisioner TenantProvisioner,
	binder SchemaBinder,
	source EventSource,
	notifier *Notifier,
	logger *zap.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		tenantsRepo: tenantsRepo,
		rolesRepo:   rolesRepo,
		usersRepo:   usersRepo,
		provisioner: provisioner,
		binder:      binder,
		source:      source,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run 启动 workers 个消费者，阻塞直到 ctx 取消
func (s *ProvisioningService) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("provisioner-%d", i)
		go func() {
			defer wg.Done()
			s.consumeLoop(ctx, consumer)
		}()
	}
	wg.Wait()
}

func (s *ProvisioningService) consumeLoop(ctx context.Context, consumer string) {
	s.logger.Info("Provisioning worker started", zap.String("consumer", consumer))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Provisioning worker stopped", zap.String("consumer", consumer))
			return
		default:
		}

		messages, err := s.source.Consume(ctx, consumer, 10)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("Failed to read provisioning events", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}

		for _, msg := range messages {
			s.Process(ctx, msg.Event)
			// 处理总是到达终态（ACTIVE 或 FAILED），确认消息不再重投
			if err := s.source.Ack(ctx, msg.ID); err != nil {
				s.logger.Warn("Failed to ack provisioning event",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// Process 处理单条 TenantCreated 事件（幂等，可安全重跑）
// 无论成败都把租户推进到终态，因此调用方处理完即可 Ack
func (s *ProvisioningService) Process(ctx context.Context, ev events.TenantCreated) {
	log := s.logger.With(
		zap.String("tenant_id", ev.TenantID),
		zap.String("subdomain", ev.Subdomain),
	)
	log.Info("Provisioning tenant")

	schemaName, err := s.provision(ctx, ev)
	if err == nil {
		log.Info("Tenant provisioned", zap.String("schema", schemaName))
		if s.notifier != nil {
			s.notifier.NotifyTenantStatus(ctx, ev.TenantID, ev.Subdomain, domain.TenantStatusActive)
		}
		return
	}

	log.Error("Tenant provisioning failed, compensating", zap.Error(err))
	s.compensate(ctx, ev, schemaName, log)
	if s.notifier != nil {
		s.notifier.NotifyTenantStatus(ctx, ev.TenantID, ev.Subdomain, domain.TenantStatusProvisioningFailed)
	}
}

// provision 正向流程；返回已创建的 schema 名（失败时供补偿删除）
func (s *ProvisioningService) provision(ctx context.Context, ev events.TenantCreated) (string, error) {
	// 事件可能晚于租户删除到达（注册补偿），先确认目录行还在
	if _, err := s.tenantsRepo.FindByID(ctx, ev.TenantID); err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			return "", fmt.Errorf("tenant vanished before provisioning: %w", err)
		}
		return "", err
	}

	schemaName, err := s.provisioner.CreateAndMigrate(ctx, ev.TenantID)
	if err != nil {
		return schemaName, err
	}

	// 管理员创建必须在租户上下文 + 绑定连接内执行
	err = tenantctx.RunWithTenant(ctx, ev.TenantID, func(ctx context.Context) error {
		bound, err := s.binder.Bind(ctx, ev.TenantID)
		if err != nil {
			return err
		}
		defer bound.Release()

		return s.createAdminUser(ctx, bound.Conn(), ev)
	})
	if err != nil {
		return schemaName, err
	}

	if err := s.tenantsRepo.SetProvisioned(ctx, ev.TenantID, schemaName); err != nil {
		return schemaName, err
	}
	return schemaName, nil
}

// createAdminUser 在绑定的租户 schema 内创建首个管理员
// master 租户（subdomain "admin"）的管理员持有 ROLE_SUPER_ADMIN，
// 普通租户持有 ROLE_ADMIN
func (s *ProvisioningService) createAdminUser(ctx context.Context, q repository.Querier, ev events.TenantCreated) error {
	roleName := domain.RoleAdmin
	if ev.Subdomain == MasterTenantSubdomain {
		roleName = domain.RoleSuperAdmin
	}

	role, err := s.rolesRepo.GetRoleByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to resolve admin role: %w", err)
	}

	// 事件携带的是 bcrypt 哈希，原样落库
	_, err = s.usersRepo.Create(ctx, q, &domain.User{
		FirstName:    ev.AdminFirstName,
		LastName:     ev.AdminLastName,
		Email:        ev.AdminEmail,
		PasswordHash: ev.AdminPasswordHash,
		Enabled:      true,
		RoleIDs:      []string{role.RoleID},
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// compensate 把租户推进到 PROVISIONING_FAILED 并清理半成品 schema
// 目录状态以重新读取的租户行为准；补偿自身的失败只记日志
func (s *ProvisioningService) compensate(ctx context.Context, ev events.TenantCreated, schemaName string, log *zap.Logger) {
	tenant, err := s.tenantsRepo.FindByID(ctx, ev.TenantID)
	if err != nil {
		log.Error("Failed to reload tenant for compensation", zap.Error(err))
	} else if tenant.Status == domain.TenantStatusProvisioning {
		if err := s.tenantsRepo.SetStatus(ctx, ev.TenantID, domain.TenantStatusProvisioningFailed); err != nil {
			log.Error("Failed to mark tenant as failed", zap.Error(err))
		}
	}

	if schemaName != "" {
		if err := s.provisioner.Drop(ctx, schemaName); err != nil {
			log.Error("Failed to drop tenant schema during compensation",
				zap.String("schema", schemaName),
				zap.Error(err),
			)
		}
	}
}
