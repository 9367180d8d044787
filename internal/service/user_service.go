package service

import (
	"context"
	"fmt"
	"strings"

	"crm-auth/internal/auth"
	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/tenantctx"

	"go.uber.org/zap"
)

// CreateUserRequest 租户内创建 principal 的请求
type CreateUserRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	RoleIDs   []string `json:"role_ids"`
}

// UpdateUserRequest 部分更新：空字符串 / nil 表示不变
type UpdateUserRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Enabled   *bool    `json:"enabled"`
	RoleIDs   []string `json:"role_ids"`
}

// UserService 租户内 principal 管理
// 所有操作都在当前租户上下文绑定的 schema 连接上执行；
// 任何改变角色分配或账号状态的操作都使该 principal 的权限缓存失效
type UserService struct {
	rolesRepo   repository.RolesRepository
	usersRepo   repository.UsersRepository
	binder      SchemaBinder
	permissions *PermissionService
	logger      *zap.Logger
}

func NewUserService(
	rolesRepo repository.RolesRepository,
	usersRepo repository.UsersRepository,
	binder SchemaBinder,
	permissions *PermissionService,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		rolesRepo:   rolesRepo,
		usersRepo:   usersRepo,
		binder:      binder,
		permissions: permissions,
		logger:      logger,
	}
}

// withBound 在当前租户上下文绑定的连接上执行 fn
func (s *UserService) withBound(ctx context.Context, fn func(ctx context.Context, conn BoundConn) error) error {
	tenantID, err := tenantctx.RequireTenantID(ctx)
	if err != nil {
		return err
	}
	bound, err := s.binder.Bind(ctx, tenantID)
	if err != nil {
		return err
	}
	defer bound.Release()
	return fn(ctx, bound)
}

// validateRoleIDs 校验全部 role_ids 指向共享 schema 的真实角色
func (s *UserService) validateRoleIDs(ctx context.Context, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	roles, err := s.rolesRepo.GetRolesByIDs(ctx, roleIDs)
	if err != nil {
		return err
	}
	if len(roles) != len(roleIDs) {
		return fmt.Errorf("%w: one or more role_ids are unknown", repository.ErrRoleNotFound)
	}
	return nil
}

// ListUsers 查询当前租户的 principal 列表
func (s *UserService) ListUsers(ctx context.Context, search string, page, size int) ([]*domain.User, int, error) {
	var users []*domain.User
	var total int
	err := s.withBound(ctx, func(ctx context.Context, conn BoundConn) error {
		var err error
		users, total, err = s.usersRepo.List(ctx, conn.Conn(), search, page, size)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser 查询单个 principal
func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user *domain.User
	err := s.withBound(ctx, func(ctx context.Context, conn BoundConn) error {
		var err error
		user, err = s.usersRepo.GetByID(ctx, conn.Conn(), userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser 在当前租户 schema 内创建 principal
// email 在 schema 内唯一；角色引用先对共享目录校验
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	if req.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if req.Password == "" {
		return nil, fmt.Errorf("password is required")
	}
	if err := s.validateRoleIDs(ctx, req.RoleIDs); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user *domain.User
	err = s.withBound(ctx, func(ctx context.Context, conn BoundConn) error {
		exists, err := s.usersRepo.ExistsByEmail(ctx, conn.Conn(), req.Email)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: email=%s", ErrEmailAlreadyExists, req.Email)
		}

		userID, err := s.usersRepo.Create(ctx, conn.Conn(), &domain.User{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			PasswordHash: hash,
			Enabled:      true,
			RoleIDs:      req.RoleIDs,
		})
		if err != nil {
			return err
		}

		user, err = s.usersRepo.GetByID(ctx, conn.Conn(), userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created",
		zap.String("user_id", user.UserID),
		zap.String("email", user.Email),
	)
	return user, nil
}

// UpdateUser 部分更新 principal
// email 变更要重新检查 schema 内唯一性；角色变更使权限缓存失效
func (s *UserService) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) (*domain.User, error) {
	if req.RoleIDs != nil {
		if err := s.validateRoleIDs(ctx, req.RoleIDs); err != nil {
			return nil, err
		}
	}

	var user *domain.User
	err := s.withBound(ctx, func(ctx context.Context, conn BoundConn) error {
		var err error
		user, err = s.usersRepo.GetByID(ctx, conn.Conn(), userID)
		if err != nil {
			return err
		}

		if req.FirstName != "" {
			user.FirstName = req.FirstName
		}
		if req.LastName != "" {
			user.LastName = req.LastName
		}
		if req.Email != "" && !strings.EqualFold(req.Email, user.Email) {
			exists, err := s.usersRepo.ExistsByEmail(ctx, conn.Conn(), req.Email)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: email=%s", ErrEmailAlreadyExists, req.Email)
			}
			user.Email = req.Email
		}
		if req.Enabled != nil {
			user.Enabled = *req.Enabled
		}
		if req.RoleIDs != nil {
			user.RoleIDs = req.RoleIDs
		}

		return s.usersRepo.Update(ctx, conn.Conn(), user)
	})
	if err != nil {
		return nil, err
	}

	s.permissions.InvalidateUser(ctx, user.UserID)
	s.logger.Info("User updated",
		zap.String("user_id", user.UserID),
		zap.String("email", user.Email),
	)
	return user, nil
}

// AssignRoles 整体替换 principal 的角色分配并立即失效其权限缓存
func (s *UserService) AssignRoles(ctx context.Context, userID string, roleIDs []string) (*domain.User, error) {
	if err := s.validateRoleIDs(ctx, roleIDs); err != nil {
		return nil, err
	}

	var user *domain.User
	err := s.withBound(ctx, func(ctx context.Context, conn BoundConn) error {
		if err := s.usersRepo.UpdateRoles(ctx, conn.Conn(), userID, roleIDs); err != nil {
			return err
		}
		var err error
		user, err = s.usersRepo.GetByID(ctx, conn.Conn(), userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.permissions.InvalidateUser(ctx, userID)
	s.logger.Info("User roles assigned",
		zap.String("user_id", userID),
		zap.Int("role_count", len(roleIDs)),
	)
	return user, nil
}

// ActivateUser 恢复账号：enabled=true 且解锁
func (s *UserService) ActivateUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.setAccess(ctx, userID, true, "User activated")
}

// DeactivateUser 停用账号：enabled=false 且锁定，下一个请求即失效
func (s *UserService) DeactivateUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.setAccess(ctx, userID, false, "User deactivated")
}

// DeleteUser 软删除：等同停用 + 锁定，行保留用于审计
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.setAccess(ctx, userID, false, "User soft deleted")
	return err
}

func (s *UserService) setAccess(ctx context.Context, userID string, enabled bool, logMsg string) (*domain.User, error) {
	var user *domain.User
	err := s.withBound(ctx, func(ctx context.Context, conn BoundConn) error {
		var err error
		user, err = s.usersRepo.GetByID(ctx, conn.Conn(), userID)
		if err != nil {
			return err
		}
		user.Enabled = enabled
		user.Locked = !enabled
		return s.usersRepo.Update(ctx, conn.Conn(), user)
	})
	if err != nil {
		return nil, err
	}

	s.permissions.InvalidateUser(ctx, userID)
	s.logger.Info(logMsg,
		zap.String("user_id", userID),
		zap.String("email", user.Email),
	)
	return user, nil
}
