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

// AuthHandler 认证面：注册、登录、刷新、当前身份
type AuthHandler struct {
	registration *service.RegistrationService
	auth         *service.AuthService
	tenants      *service.TenantService
	permissions  *service.PermissionService
	logger       *zap.Logger
}

func NewAuthHandler(
	registration *service.RegistrationService,
	auth *service.AuthService,
	tenants *service.TenantService,
	permissions *service.PermissionService,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		registration: registration,
		auth:         auth,
		tenants:      tenants,
		permissions:  permissions,
		logger:       logger,
	}
}

// Register POST /auth/api/v1/register
// 202 Accepted：开通是异步的，客户端轮询租户状态或等回调
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegistrationRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	result, err := h.registration.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Ok(result))
}

type loginRequest struct {
	Subdomain string `json:"subdomain"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Login POST /auth/api/v1/login
// 租户由 X-Tenant-Subdomain 头或 body.subdomain 解析，
// 登录本身在该租户的上下文内执行
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	subdomain := strings.TrimSpace(r.Header.Get("X-Tenant-Subdomain"))
	if subdomain == "" {
		subdomain = strings.TrimSpace(req.Subdomain)
	}
	if subdomain == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, Fail("subdomain, email and password are required"))
		return
	}

	tenant, err := h.tenants.GetTenantBySubdomain(r.Context(), subdomain)
	if err != nil {
		// 不泄露租户是否存在
		writeJSON(w, http.StatusUnauthorized, Fail("invalid credentials"))
		return
	}

	var resp *service.LoginResponse
	err = tenantctx.RunWithTenant(r.Context(), tenant.TenantID, func(ctx context.Context) error {
		var err error
		resp, err = h.auth.Login(ctx, req.Email, req.Password)
		return err
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh POST /auth/api/v1/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, Fail("refresh_token is required"))
		return
	}

	resp, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Me GET /auth/api/v1/me（需认证）
// 返回富化身份 + 解析后的有效权限
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, TokenExpired("authentication required"))
		return
	}

	permissions, err := h.permissions.ResolvePermissions(r.Context(), identity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	perms := make([]map[string]string, 0, len(permissions))
	for _, p := range permissions {
		perms = append(perms, map[string]string{"resource": p.Resource, "action": p.Action})
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"user_id":       identity.User.UserID,
		"email":         identity.User.Email,
		"first_name":    identity.User.FirstName,
		"last_name":     identity.User.LastName,
		"tenant_id":     identity.TenantID,
		"tenant_name":   identity.TenantName,
		"tenant_status": identity.TenantStatus,
		"roles":         identity.RoleNames,
		"permissions":   perms,
		"is_super":      identity.HasRole(domain.RoleSuperAdmin),
	}))
}
