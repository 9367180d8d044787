package httpapi

import (
	"net/http"
	"strings"

	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/service"
)

// TenantsHandler 平台租户管理面
type TenantsHandler struct {
	tenants *service.TenantService
}

func NewTenantsHandler(tenants *service.TenantService) *TenantsHandler {
	return &TenantsHandler{tenants: tenants}
}

func tenantToMap(t *domain.Tenant) map[string]any {
	schemaName := ""
	if t.SchemaName.Valid {
		schemaName = t.SchemaName.String
	}
	return map[string]any{
		"tenant_id":   t.TenantID,
		"tenant_name": t.Name,
		"subdomain":   t.Subdomain,
		"status":      t.Status,
		"schema_name": schemaName,
		"plan":        t.Plan,
		"created_at":  t.CreatedAt,
	}
}

func (h *TenantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/tenants":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)

	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/tenants/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/tenants/")
		parts := strings.Split(rest, "/")
		id := parts[0]
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			h.get(w, r, id)
		case len(parts) == 2 && parts[1] == "suspend" && r.Method == http.MethodPut:
			h.suspend(w, r, id)
		case len(parts) == 2 && parts[1] == "activate" && r.Method == http.MethodPut:
			h.activate(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *TenantsHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := repository.TenantFilters{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)

	items, total, err := h.tenants.ListTenants(r.Context(), filter, page, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]any, 0, len(items))
	for _, t := range items {
		out = append(out, tenantToMap(t))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": total}))
}

func (h *TenantsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	tenant, err := h.tenants.GetTenant(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantToMap(tenant)))
}

func (h *TenantsHandler) suspend(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.tenants.SuspendTenant(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"tenant_id": id, "status": domain.TenantStatusSuspended}))
}

func (h *TenantsHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.tenants.ActivateTenant(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"tenant_id": id, "status": domain.TenantStatusActive}))
}
