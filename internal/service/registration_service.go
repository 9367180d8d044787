package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"crm-auth/internal/auth"
	"crm-auth/internal/domain"
	"crm-auth/internal/events"
	"crm-auth/internal/repository"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// MasterTenantSubdomain 平台 master 租户的子域名
// 唯一允许使用保留子域名的租户，由引导流程注册，
// 其管理员持有 ROLE_SUPER_ADMIN
const MasterTenantSubdomain = "admin"

// 平台保留的子域名，不允许注册
var reservedSubdomains = map[string]struct{}{
	"admin": {}, "api": {}, "www": {}, "app": {}, "test": {},
	"staging": {}, "prod": {}, "production": {}, "dev": {}, "demo": {},
	"mail": {}, "ftp": {}, "cdn": {}, "static": {}, "assets": {},
}

// 小写字母/数字开头结尾，中间允许连字符
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

const (
	subdomainMinLen = 3
	subdomainMaxLen = 63
)

// RegistrationRequest 租户自助注册请求
type RegistrationRequest struct {
	CompanyName    string `json:"company_name"`
	Subdomain      string `json:"subdomain"`
	AdminEmail     string `json:"admin_email"`
	AdminPassword  string `json:"admin_password"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	Plan           string `json:"plan"`
}

// RegistrationResult 注册受理结果
// 快路径不开通任何资源，也不发令牌；status 恒为 PROVISIONING
type RegistrationResult struct {
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
	Status    string `json:"status"`
}

// EventPublisher TenantCreated 事件发布（*events.Bus 的抽象）
type EventPublisher interface {
	Publish(ctx context.Context, ev events.TenantCreated) (string, error)
}

// RegistrationService 租户注册工作流（同步快路径）
// 只做校验 + 目录插入 + 事件发布，重活交给异步开通流水线
type RegistrationService struct {
	tenantsRepo repository.TenantsRepository
	rolesRepo   repository.RolesRepository
	bus         EventPublisher
	logger      *zap.Logger
}

func NewRegistrationService(
	tenantsRepo repository.TenantsRepository,
	rolesRepo repository.RolesRepository,
	bus EventPublisher,
	logger *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		tenantsRepo: tenantsRepo,
		rolesRepo:   rolesRepo,
		bus:         bus,
		logger:      logger,
	}
}

// ValidateSubdomain 校验子域名格式与保留名单
// 输入先归一化为小写；返回的 *SubdomainError 携带可展示的原因
func ValidateSubdomain(subdomain string) error {
	s := strings.ToLower(strings.TrimSpace(subdomain))
	if err := validateSubdomainFormat(s); err != nil {
		return err
	}
	if _, ok := reservedSubdomains[s]; ok {
		return &SubdomainError{Subdomain: s, Reason: "subdomain is reserved"}
	}
	return nil
}

func validateSubdomainFormat(s string) error {
	if len(s) < subdomainMinLen || len(s) > subdomainMaxLen {
		return &SubdomainError{Subdomain: s, Reason: fmt.Sprintf("length must be %d-%d characters", subdomainMinLen, subdomainMaxLen)}
	}
	if !subdomainPattern.MatchString(s) {
		return &SubdomainError{Subdomain: s, Reason: "only lowercase letters, digits and hyphens are allowed, must start and end with a letter or digit"}
	}
	return nil
}

// IsReservedSubdomain 判断子域名是否在保留名单内
// 平台引导注册 master 租户时需要绕过保留校验，这里单独暴露判定
func IsReservedSubdomain(subdomain string) bool {
	_, ok := reservedSubdomains[strings.ToLower(subdomain)]
	return ok
}

// Register 受理租户注册
// 同步路径只插入目录行（PROVISIONING）并发布 TenantCreated 事件；
// 事件发布失败时删除刚插入的租户行作为补偿，注册整体失败
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	return s.register(ctx, req, false)
}

// RegisterMaster 平台引导专用：注册 master 租户，允许保留子域名
func (s *RegistrationService) RegisterMaster(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	return s.register(ctx, req, true)
}

func (s *RegistrationService) register(ctx context.Context, req RegistrationRequest, allowReserved bool) (*RegistrationResult, error) {
	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))

	if allowReserved {
		if err := validateSubdomainFormat(subdomain); err != nil {
			return nil, err
		}
	} else if err := ValidateSubdomain(subdomain); err != nil {
		return nil, err
	}
	if req.CompanyName == "" {
		return nil, fmt.Errorf("company_name is required")
	}
	if req.AdminEmail == "" || req.AdminPassword == "" {
		return nil, fmt.Errorf("admin email and password are required")
	}

	// 预检唯一性；并发窗口由 subdomain 唯一约束兜底
	if _, err := s.tenantsRepo.FindBySubdomain(ctx, subdomain); err == nil {
		return nil, fmt.Errorf("%w: subdomain=%s", ErrTenantAlreadyExists, subdomain)
	} else if !errors.Is(err, repository.ErrTenantNotFound) {
		return nil, err
	}

	// 引导角色必须已存在，否则注册无法受理（运维配置错误）
	if _, err := s.rolesRepo.GetRoleByName(ctx, domain.RoleAdmin); err != nil {
		return nil, fmt.Errorf("bootstrap admin role unavailable: %w", err)
	}

	// 密码哈希在同步路径完成，明文绝不进事件
	passwordHash, err := auth.HashPassword(req.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	tenantID, err := s.tenantsRepo.Create(ctx, &domain.Tenant{
		Name:      req.CompanyName,
		Subdomain: subdomain,
		Status:    domain.TenantStatusProvisioning,
		Plan:      req.Plan,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: subdomain=%s", ErrTenantAlreadyExists, subdomain)
		}
		return nil, err
	}

	ev := events.TenantCreated{
		TenantID:          tenantID,
		Subdomain:         subdomain,
		AdminEmail:        strings.ToLower(req.AdminEmail),
		AdminPasswordHash: passwordHash,
		AdminFirstName:    req.AdminFirstName,
		AdminLastName:     req.AdminLastName,
	}
	if _, err := s.bus.Publish(ctx, ev); err != nil {
		// 发布失败意味着开通永远不会发生：删掉目录行，保持无副作用
		if delErr := s.tenantsRepo.Delete(ctx, tenantID); delErr != nil {
			s.logger.Error("Failed to compensate tenant row after publish failure",
				zap.String("tenant_id", tenantID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("failed to enqueue tenant provisioning: %w", err)
	}

	s.logger.Info("Tenant registration accepted",
		zap.String("tenant_id", tenantID),
		zap.String("subdomain", subdomain),
	)

	return &RegistrationResult{
		TenantID:  tenantID,
		Subdomain: subdomain,
		Status:    domain.TenantStatusProvisioning,
	}, nil
}
