package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/store"

	"go.uber.org/zap"
)

const (
	permCacheTTL       = 10 * time.Minute
	permCacheKeyPrefix = "perm:user:"
)

// PermissionService 权限解析与授权检查
// 聚合 principal 所有角色的权限并集；解析结果按 user 缓存，
// 角色或权限目录变更时整体失效
type PermissionService struct {
	rolesRepo repository.RolesRepository
	cache     store.KV
	logger    *zap.Logger
}

func NewPermissionService(rolesRepo repository.RolesRepository, cache store.KV, logger *zap.Logger) *PermissionService {
	return &PermissionService{rolesRepo: rolesRepo, cache: cache, logger: logger}
}

// ResolvePermissions 解析 principal 的有效权限（全部角色的并集）
// 缓存命中直接返回；缓存故障降级为直查数据库，不阻塞请求
func (s *PermissionService) ResolvePermissions(ctx context.Context, identity *domain.Identity) ([]*domain.Permission, error) {
	if identity == nil || identity.User == nil {
		return nil, fmt.Errorf("identity is required")
	}

	cacheKey := permCacheKeyPrefix + identity.User.UserID

	if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
		var permissions []*domain.Permission
		if err := json.Unmarshal([]byte(cached), &permissions); err == nil {
			return permissions, nil
		}
		// 缓存内容损坏：删掉重建
		_ = s.cache.Del(ctx, cacheKey)
	} else if !errors.Is(err, store.ErrMiss) {
		s.logger.Warn("Permission cache read failed, falling back to database", zap.Error(err))
	}

	permissions, err := s.rolesRepo.ListPermissionsForRoles(ctx, []string(identity.User.RoleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	if data, err := json.Marshal(permissions); err == nil {
		if err := s.cache.Set(ctx, cacheKey, string(data), permCacheTTL); err != nil {
			s.logger.Warn("Permission cache write failed", zap.Error(err))
		}
	}

	return permissions, nil
}

// HasPermission 判断 principal 是否持有 (resource, action) 权限
// 超级管理员无条件通过；资源与操作比较大小写不敏感
func (s *PermissionService) HasPermission(ctx context.Context, identity *domain.Identity, resource, action string) (bool, error) {
	if identity == nil || identity.User == nil {
		return false, nil
	}
	if identity.IsSuperAdmin() {
		return true, nil
	}
	if len(identity.User.RoleIDs) == 0 {
		return false, nil
	}

	permissions, err := s.ResolvePermissions(ctx, identity)
	if err != nil {
		return false, err
	}
	for _, p := range permissions {
		if strings.EqualFold(p.Resource, resource) && strings.EqualFold(p.Action, action) {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission 授权检查，缺权限时返回 *AccessDeniedError
// 解析失败按拒绝处理（错误原样返回），绝不降级放行
func (s *PermissionService) RequirePermission(ctx context.Context, identity *domain.Identity, resource, action string) error {
	ok, err := s.HasPermission(ctx, identity, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		return &AccessDeniedError{Resource: resource, Action: action}
	}
	return nil
}

// HasAnyRole 判断 principal 是否持有任一指定角色
func (s *PermissionService) HasAnyRole(identity *domain.Identity, roleNames ...string) bool {
	if identity == nil {
		return false
	}
	for _, name := range roleNames {
		if identity.HasRole(name) {
			return true
		}
	}
	return false
}

// InvalidateUser 使单个 principal 的权限缓存失效（角色分配变更时）
func (s *PermissionService) InvalidateUser(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, permCacheKeyPrefix+userID); err != nil {
		s.logger.Warn("Failed to invalidate permission cache",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// InvalidateAll 使全部权限缓存失效（角色定义或权限目录变更时）
func (s *PermissionService) InvalidateAll(ctx context.Context) {
	if err := s.cache.DelPattern(ctx, permCacheKeyPrefix+"*"); err != nil {
		s.logger.Warn("Failed to invalidate permission caches", zap.Error(err))
	}
}
