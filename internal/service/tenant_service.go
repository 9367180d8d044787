package service

import (
	"context"
	"fmt"

	"crm-auth/internal/domain"
	"crm-auth/internal/repository"

	"go.uber.org/zap"
)

// ErrInvalidStatusTransition 租户状态机不允许的迁移
var ErrInvalidStatusTransition = fmt.Errorf("invalid tenant status transition")

// TenantService 租户目录管理（平台侧）
// 状态迁移只允许 ACTIVE ⇄ SUSPENDED；PROVISIONING / FAILED
// 是开通流水线的专属状态，不接受人工改写
type TenantService struct {
	tenantsRepo repository.TenantsRepository
	logger      *zap.Logger
}

func NewTenantService(tenantsRepo repository.TenantsRepository, logger *zap.Logger) *TenantService {
	return &TenantService{tenantsRepo: tenantsRepo, logger: logger}
}

// ListTenants 分页查询租户目录
func (s *TenantService) ListTenants(ctx context.Context, filter repository.TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	return s.tenantsRepo.List(ctx, filter, page, size)
}

// GetTenant 查询单个租户
func (s *TenantService) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return s.tenantsRepo.FindByID(ctx, tenantID)
}

// GetTenantBySubdomain 按子域名查询租户（登录入口的租户解析）
func (s *TenantService) GetTenantBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	return s.tenantsRepo.FindBySubdomain(ctx, subdomain)
}

// SuspendTenant 停用租户，立即阻断其登录与令牌刷新
func (s *TenantService) SuspendTenant(ctx context.Context, tenantID string) error {
	return s.transition(ctx, tenantID, domain.TenantStatusActive, domain.TenantStatusSuspended)
}

// ActivateTenant 恢复已停用的租户
func (s *TenantService) ActivateTenant(ctx context.Context, tenantID string) error {
	return s.transition(ctx, tenantID, domain.TenantStatusSuspended, domain.TenantStatusActive)
}

func (s *TenantService) transition(ctx context.Context, tenantID, from, to string) error {
	tenant, err := s.tenantsRepo.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, tenant.Status, to)
	}
	if err := s.tenantsRepo.SetStatus(ctx, tenantID, to); err != nil {
		return err
	}
	s.logger.Info("Tenant status changed",
		zap.String("tenant_id", tenantID),
		zap.String("from", from),
		zap.String("to", to),
	)
	return nil
}
