package httpapi

import (
	"net/http"

	"crm-auth/internal/domain"
	"crm-auth/internal/service"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterAuthRoutes 认证面路由
// register/login/refresh 是匿名入口，me 需要认证
func (r *Router) RegisterAuthRoutes(h *AuthHandler, authn *Authenticator) {
	r.Handle("/auth/api/v1/register", methodOnly(http.MethodPost, h.Register))
	r.Handle("/auth/api/v1/login", methodOnly(http.MethodPost, h.Login))
	r.Handle("/auth/api/v1/refresh", methodOnly(http.MethodPost, h.Refresh))
	r.Handle("/auth/api/v1/me", methodOnly(http.MethodGet, authn.Wrap(h.Me)))
}

// RegisterAdminTenantRoutes 租户管理面（仅平台超级管理员）
func (r *Router) RegisterAdminTenantRoutes(h *TenantsHandler, authn *Authenticator) {
	guarded := authn.Wrap(RequireRole(domain.RoleSuperAdmin, h.ServeHTTP))
	r.Handle("/admin/api/v1/tenants", guarded)
	r.Handle("/admin/api/v1/tenants/", guarded)
}

// RegisterAdminRoleRoutes 角色管理面（按权限授权）
func (r *Router) RegisterAdminRoleRoutes(h *RolesHandler, authn *Authenticator, perms *service.PermissionService) {
	dispatch := func(w http.ResponseWriter, req *http.Request) {
		resource, action := "ROLES", "READ"
		if req.URL.Path == "/admin/api/v1/permissions" {
			resource = "PERMISSIONS"
		} else {
			switch req.Method {
			case http.MethodPost:
				action = "CREATE"
			case http.MethodPut:
				action = "UPDATE"
			case http.MethodDelete:
				action = "DELETE"
			}
		}
		RequirePermission(perms, resource, action, h.ServeHTTP)(w, req)
	}

	guarded := authn.Wrap(dispatch)
	r.Handle("/admin/api/v1/roles", guarded)
	r.Handle("/admin/api/v1/roles/", guarded)
	r.Handle("/admin/api/v1/permissions", guarded)
}

// RegisterAdminUserRoutes 租户内用户管理面（按权限授权）
func (r *Router) RegisterAdminUserRoutes(h *UsersHandler, authn *Authenticator, perms *service.PermissionService) {
	dispatch := func(w http.ResponseWriter, req *http.Request) {
		action := "READ"
		switch req.Method {
		case http.MethodPost:
			action = "CREATE"
		case http.MethodPut:
			action = "UPDATE"
		case http.MethodDelete:
			action = "DELETE"
		}
		RequirePermission(perms, "USERS", action, h.ServeHTTP)(w, req)
	}

	guarded := authn.Wrap(dispatch)
	r.Handle("/admin/api/v1/users", guarded)
	r.Handle("/admin/api/v1/users/", guarded)
}

// RegisterHealthRoutes 存活探针
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
