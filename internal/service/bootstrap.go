package service

import (
	"context"
	"errors"
	"fmt"

	"crm-auth/internal/config"
	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/schema"

	"go.uber.org/zap"
)

// 权限目录种子：资源 x 操作
// 开通后各租户共享同一套权限定义，角色决定谁拿到哪些
var permissionSeeds = []struct {
	Resource string
	Action   string
	Name     string
}{
	{"TENANTS", "READ", "View tenants"},
	{"TENANTS", "UPDATE", "Manage tenant lifecycle"},
	{"ROLES", "READ", "View roles"},
	{"ROLES", "CREATE", "Create roles"},
	{"ROLES", "UPDATE", "Update roles"},
	{"ROLES", "DELETE", "Delete roles"},
	{"PERMISSIONS", "READ", "View permission catalog"},
	{"USERS", "READ", "View users"},
	{"USERS", "CREATE", "Create users"},
	{"USERS", "UPDATE", "Update users"},
	{"USERS", "DELETE", "Delete users"},
}

// 系统角色种子与各自的权限绑定（resource:action）
var roleSeeds = []struct {
	Name        string
	Description string
	Grants      []string // 空表示授予全部权限
}{
	{domain.RoleSuperAdmin, "Platform super administrator", nil},
	{domain.RoleAdmin, "Tenant administrator", []string{
		"ROLES:READ", "PERMISSIONS:READ",
		"USERS:READ", "USERS:CREATE", "USERS:UPDATE", "USERS:DELETE",
	}},
}

// Bootstrapper 首次启动引导
// 迁移共享 schema、种入权限目录与系统角色，
// 并在 master 租户缺失时通过常规注册工作流创建它
type Bootstrapper struct {
	migrator     *schema.Migrator
	tenantsRepo  repository.TenantsRepository
	rolesRepo    repository.RolesRepository
	registration *RegistrationService
	cfg          config.BootstrapConfig
	logger       *zap.Logger
}

func NewBootstrapper(
	migrator *schema.Migrator,
	tenantsRepo repository.TenantsRepository,
	rolesRepo repository.RolesRepository,
	registration *RegistrationService,
	cfg config.BootstrapConfig,
	logger *zap.Logger,
) *Bootstrapper {
	return &Bootstrapper{
		migrator:     migrator,
		tenantsRepo:  tenantsRepo,
		rolesRepo:    rolesRepo,
		registration: registration,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run 执行引导（幂等，每次启动都可安全调用）
// master 租户走与普通租户相同的注册 + 异步开通路径，
// 只是允许使用保留子域名且管理员拿到 ROLE_SUPER_ADMIN
func (b *Bootstrapper) Run(ctx context.Context) error {
	applied, err := b.migrator.MigrateShared(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate shared schema: %w", err)
	}
	if applied > 0 {
		b.logger.Info("Shared schema migrated", zap.Int("migrations_applied", applied))
	}

	permissionIDs, err := b.seedPermissions(ctx)
	if err != nil {
		return err
	}
	if err := b.seedRoles(ctx, permissionIDs); err != nil {
		return err
	}
	return b.ensureMasterTenant(ctx)
}

// seedPermissions 幂等写入权限目录，返回 resource:action → permission_id
func (b *Bootstrapper) seedPermissions(ctx context.Context) (map[string]string, error) {
	ids := make(map[string]string, len(permissionSeeds))
	for _, seed := range permissionSeeds {
		id, err := b.rolesRepo.EnsurePermission(ctx, seed.Resource, seed.Action, seed.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to seed permission %s:%s: %w", seed.Resource, seed.Action, err)
		}
		ids[seed.Resource+":"+seed.Action] = id
	}
	return ids, nil
}

// seedRoles 创建缺失的系统角色并对齐其权限绑定
func (b *Bootstrapper) seedRoles(ctx context.Context, permissionIDs map[string]string) error {
	for _, seed := range roleSeeds {
		role, err := b.rolesRepo.GetRoleByName(ctx, seed.Name)
		if err != nil {
			if !errors.Is(err, repository.ErrRoleNotFound) {
				return err
			}
			roleID, err := b.rolesRepo.CreateRole(ctx, &domain.Role{
				Name:        seed.Name,
				Description: seed.Description,
				IsSystem:    true,
			})
			if err != nil {
				return fmt.Errorf("failed to seed role %s: %w", seed.Name, err)
			}
			role = &domain.Role{RoleID: roleID, Name: seed.Name, IsSystem: true}
			b.logger.Info("System role created", zap.String("role_name", seed.Name))
		}

		grants := seed.Grants
		if grants == nil {
			grants = make([]string, 0, len(permissionIDs))
			for key := range permissionIDs {
				grants = append(grants, key)
			}
		}
		ids := make([]string, 0, len(grants))
		for _, key := range grants {
			id, ok := permissionIDs[key]
			if !ok {
				return fmt.Errorf("unknown permission grant %q for role %s", key, seed.Name)
			}
			ids = append(ids, id)
		}
		if err := b.rolesRepo.SetRolePermissions(ctx, role.RoleID, ids); err != nil {
			return fmt.Errorf("failed to bind permissions for role %s: %w", seed.Name, err)
		}
	}
	return nil
}

// ensureMasterTenant master 租户缺失时受理注册（开通由流水线异步完成）
func (b *Bootstrapper) ensureMasterTenant(ctx context.Context) error {
	_, err := b.tenantsRepo.FindBySubdomain(ctx, MasterTenantSubdomain)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrTenantNotFound) {
		return err
	}

	result, err := b.registration.RegisterMaster(ctx, RegistrationRequest{
		CompanyName:    "Platform",
		Subdomain:      MasterTenantSubdomain,
		AdminEmail:     b.cfg.AdminEmail,
		AdminPassword:  b.cfg.AdminPassword,
		AdminFirstName: b.cfg.AdminFirstName,
		AdminLastName:  b.cfg.AdminLastName,
		Plan:           "ENTERPRISE",
	})
	if err != nil {
		return fmt.Errorf("failed to register master tenant: %w", err)
	}

	b.logger.Info("Master tenant registration accepted",
		zap.String("tenant_id", result.TenantID),
	)
	return nil
}
