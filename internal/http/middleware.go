package httpapi

import (
	"context"
	"net/http"
	"strings"

	"crm-auth/internal/domain"
	"crm-auth/internal/service"
	"crm-auth/internal/tenantctx"

	"go.uber.org/zap"
)

type identityKey struct{}

// IdentityFrom 取出认证中间件放入的富化身份
func IdentityFrom(ctx context.Context) (*domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*domain.Identity)
	return identity, ok && identity != nil
}

// Authenticator 认证中间件
// Bearer 令牌 → 富化身份 → 租户上下文，全部挂在派生的
// 请求 context 上；请求结束即丢弃，不存在跨请求泄漏
type Authenticator struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthenticator(auth *service.AuthService, logger *zap.Logger) *Authenticator {
	return &Authenticator{auth: auth, logger: logger}
}

// Wrap 要求请求携带有效访问令牌
func (a *Authenticator) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, TokenExpired("missing bearer token"))
			return
		}

		identity, err := a.auth.ResolveIdentity(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		ctx, err := tenantctx.WithTenant(r.Context(), identity.TenantID)
		if err != nil {
			a.logger.Error("Failed to bind tenant context", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
			return
		}
		ctx = context.WithValue(ctx, identityKey{}, identity)

		next(w, r.WithContext(ctx))
	}
}

// RequirePermission 方法级授权装饰器
// 进入被装饰的 handler 前检查 (resource, action)，
// 缺权限返回 403，检查出错按拒绝处理
func RequirePermission(perms *service.PermissionService, resource, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, TokenExpired("authentication required"))
			return
		}
		if err := perms.RequirePermission(r.Context(), identity, resource, action); err != nil {
			writeServiceError(w, err)
			return
		}
		next(w, r)
	}
}

// RequireRole 角色门槛装饰器（平台管理面）
func RequireRole(roleName string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, TokenExpired("authentication required"))
			return
		}
		if !identity.HasRole(roleName) {
			writeJSON(w, http.StatusForbidden, Fail("insufficient role"))
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
