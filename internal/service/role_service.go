package service

import (
	"context"
	"errors"
	"fmt"

	"crm-auth/internal/domain"
	"crm-auth/internal/repository"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrSystemRoleImmutable 系统角色不可修改、不可删除
var ErrSystemRoleImmutable = errors.New("system role cannot be modified")

// ErrRoleAlreadyExists 角色名冲突
var ErrRoleAlreadyExists = errors.New("role already exists")

// RoleService 角色与权限目录管理
// 任何改变角色/权限绑定的操作都使权限缓存整体失效，
// 保证授权检查最多滞后一次缓存 TTL
type RoleService struct {
	rolesRepo   repository.RolesRepository
	permissions *PermissionService
	logger      *zap.Logger
}

func NewRoleService(rolesRepo repository.RolesRepository, permissions *PermissionService, logger *zap.Logger) *RoleService {
	return &RoleService{rolesRepo: rolesRepo, permissions: permissions, logger: logger}
}

// ListRoles 查询全部角色
func (s *RoleService) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return s.rolesRepo.ListRoles(ctx)
}

// GetRole 查询单个角色
func (s *RoleService) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	return s.rolesRepo.GetRoleByID(ctx, roleID)
}

// ListPermissions 查询权限目录
func (s *RoleService) ListPermissions(ctx context.Context) ([]*domain.Permission, error) {
	return s.rolesRepo.ListPermissions(ctx)
}

// RolePermissions 查询角色绑定的权限
func (s *RoleService) RolePermissions(ctx context.Context, roleID string) ([]*domain.Permission, error) {
	if _, err := s.rolesRepo.GetRoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.rolesRepo.ListPermissionsForRoles(ctx, []string{roleID})
}

// CreateRole 创建自定义角色（is_system 恒为 false，系统角色只能由引导创建）
func (s *RoleService) CreateRole(ctx context.Context, name, description string) (*domain.Role, error) {
	if name == "" {
		return nil, fmt.Errorf("role_name is required")
	}

	role := &domain.Role{Name: name, Description: description, IsSystem: false}
	roleID, err := s.rolesRepo.CreateRole(ctx, role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: role_name=%s", ErrRoleAlreadyExists, name)
		}
		return nil, err
	}
	role.RoleID = roleID

	s.logger.Info("Role created", zap.String("role_id", roleID), zap.String("role_name", name))
	return role, nil
}

// UpdateRole 更新角色名称/描述
func (s *RoleService) UpdateRole(ctx context.Context, roleID, name, description string) error {
	if err := s.requireMutable(ctx, roleID); err != nil {
		return err
	}
	if err := s.rolesRepo.UpdateRole(ctx, roleID, &domain.Role{Name: name, Description: description}); err != nil {
		return err
	}
	s.permissions.InvalidateAll(ctx)
	return nil
}

// DeleteRole 删除角色（principal 的 role_ids 里残留的引用在解析时被忽略）
func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	if err := s.requireMutable(ctx, roleID); err != nil {
		return err
	}
	if err := s.rolesRepo.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.permissions.InvalidateAll(ctx)
	s.logger.Info("Role deleted", zap.String("role_id", roleID))
	return nil
}

// SetRolePermissions 整体替换角色的权限集合
func (s *RoleService) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if err := s.requireMutable(ctx, roleID); err != nil {
		return err
	}
	if err := s.rolesRepo.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.permissions.InvalidateAll(ctx)
	s.logger.Info("Role permissions replaced",
		zap.String("role_id", roleID),
		zap.Int("permission_count", len(permissionIDs)),
	)
	return nil
}

func (s *RoleService) requireMutable(ctx context.Context, roleID string) error {
	role, err := s.rolesRepo.GetRoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: role_name=%s", ErrSystemRoleImmutable, role.Name)
	}
	return nil
}
