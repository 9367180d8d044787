package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crm-auth/internal/auth"
	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/tenantctx"

	"go.uber.org/zap"
)

// LoginResponse 登录/刷新成功的响应体
type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	TenantID     string   `json:"tenant_id"`
	TenantName   string   `json:"tenant_name"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
}

// AuthService 认证流程：登录、刷新、身份解析
// 租户状态永远以目录行的重新读取为准，不信任令牌或缓存里的快照
type AuthService struct {
	tenantsRepo repository.TenantsRepository
	rolesRepo   repository.RolesRepository
	usersRepo   repository.UsersRepository
	binder      SchemaBinder
	jwt         *auth.JwtService
	logger      *zap.Logger
}

func NewAuthService(
	tenantsRepo repository.TenantsRepository,
	rolesRepo repository.RolesRepository,
	usersRepo repository.UsersRepository,
	binder SchemaBinder,
	jwt *auth.JwtService,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		tenantsRepo: tenantsRepo,
		rolesRepo:   rolesRepo,
		usersRepo:   usersRepo,
		binder:      binder,
		jwt:         jwt,
		logger:      logger,
	}
}

// Login 在当前租户上下文内用 email/密码认证
// 调用方（HTTP 层）已根据子域名解析租户并设置租户上下文；
// 认证失败一律返回 ErrInvalidCredentials，不泄露账号是否存在
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	tenantID, err := tenantctx.RequireTenantID(ctx)
	if err != nil {
		return nil, err
	}

	tenant, err := s.requireActiveTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUserByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, ErrAccountDisabled
	}
	if user.Locked {
		return nil, ErrAccountLocked
	}

	identity, err := s.buildIdentity(ctx, tenant, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in",
		zap.String("tenant_id", tenantID),
		zap.String("email", user.Email),
	)
	return s.issueTokens(identity)
}

// Refresh 用刷新令牌换发新的令牌对
// 租户状态重新校验：租户被停用后刷新立即失效
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	claims, err := s.jwt.Parse(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		return nil, ErrInvalidToken
	}

	tenant, err := s.requireActiveTenant(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}

	var identity *domain.Identity
	err = tenantctx.RunWithTenant(ctx, claims.TenantID, func(ctx context.Context) error {
		user, err := s.loadUserByEmail(ctx, claims.TenantID, claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if !user.Enabled || user.Locked {
			return ErrInvalidToken
		}
		identity, err = s.buildIdentity(ctx, tenant, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.issueTokens(identity)
}

// ResolveIdentity 从访问令牌重建富化身份（认证中间件入口）
// 每个请求都重新读取租户行与 principal 行：停用、锁定、
// 角色变更都在下一个请求立即生效
func (s *AuthService) ResolveIdentity(ctx context.Context, accessToken string) (*domain.Identity, error) {
	claims, err := s.jwt.Parse(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	tenant, err := s.requireActiveTenant(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUserByEmail(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.Enabled || user.Locked {
		return nil, ErrInvalidToken
	}

	return s.buildIdentity(ctx, tenant, user)
}

// requireActiveTenant 重新读取租户行并要求 ACTIVE
// PROVISIONING / FAILED / SUSPENDED 一律拒绝
func (s *AuthService) requireActiveTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := s.tenantsRepo.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if tenant.Status != domain.TenantStatusActive {
		return nil, fmt.Errorf("%w: status=%s", ErrTenantNotActive, tenant.Status)
	}
	return tenant, nil
}

// loadUserByEmail 在绑定的租户 schema 内读取 principal
func (s *AuthService) loadUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	var user *domain.User
	err := tenantctx.RunWithTenant(ctx, tenantID, func(ctx context.Context) error {
		bound, err := s.binder.Bind(ctx, tenantID)
		if err != nil {
			return err
		}
		defer bound.Release()

		user, err = s.usersRepo.GetByEmail(ctx, bound.Conn(), email)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// buildIdentity 组装富化身份：principal + 租户快照 + 角色名
func (s *AuthService) buildIdentity(ctx context.Context, tenant *domain.Tenant, user *domain.User) (*domain.Identity, error) {
	roles, err := s.rolesRepo.GetRolesByIDs(ctx, []string(user.RoleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user roles: %w", err)
	}

	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
	}

	return &domain.Identity{
		User:         user,
		TenantID:     tenant.TenantID,
		TenantName:   tenant.Name,
		TenantStatus: tenant.Status,
		RoleNames:    roleNames,
	}, nil
}

func (s *AuthService) issueTokens(identity *domain.Identity) (*LoginResponse, error) {
	subject := strings.ToLower(identity.User.Email)

	accessToken, err := s.jwt.GenerateAccessToken(subject, identity.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken, err := s.jwt.GenerateRefreshToken(subject, identity.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessTokenTTL().Seconds()),
		TenantID:     identity.TenantID,
		TenantName:   identity.TenantName,
		Email:        identity.User.Email,
		Roles:        identity.RoleNames,
	}, nil
}
