package httpapi

import (
	"net/http"
	"strings"

	"crm-auth/internal/domain"
	"crm-auth/internal/service"
)

// RolesHandler 角色与权限目录管理面
type RolesHandler struct {
	roles *service.RoleService
}

func NewRolesHandler(roles *service.RoleService) *RolesHandler {
	return &RolesHandler{roles: roles}
}

func roleToMap(role *domain.Role) map[string]any {
	return map[string]any{
		"role_id":     role.RoleID,
		"role_name":   role.Name,
		"description": role.Description,
		"is_system":   role.IsSystem,
	}
}

func permissionToMap(p *domain.Permission) map[string]any {
	return map[string]any{
		"permission_id": p.PermissionID,
		"resource":      p.Resource,
		"action":        p.Action,
		"name":          p.Name,
	}
}

func (h *RolesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/permissions":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.listPermissions(w, r)

	case r.URL.Path == "/admin/api/v1/roles":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/roles/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/roles/")
		parts := strings.Split(rest, "/")
		id := parts[0]
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			h.get(w, r, id)
		case len(parts) == 1 && r.Method == http.MethodPut:
			h.update(w, r, id)
		case len(parts) == 1 && r.Method == http.MethodDelete:
			h.delete(w, r, id)
		case len(parts) == 2 && parts[1] == "permissions" && r.Method == http.MethodGet:
			h.rolePermissions(w, r, id)
		case len(parts) == 2 && parts[1] == "permissions" && r.Method == http.MethodPut:
			h.setRolePermissions(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *RolesHandler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]any, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleToMap(role))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": len(out)}))
}

func (h *RolesHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.roles.ListPermissions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]any, 0, len(permissions))
	for _, p := range permissions {
		out = append(out, permissionToMap(p))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": len(out)}))
}

type roleRequest struct {
	Name        string `json:"role_name"`
	Description string `json:"description"`
}

func (h *RolesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("role_name is required"))
		return
	}

	role, err := h.roles.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(roleToMap(role)))
}

func (h *RolesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(roleToMap(role)))
}

func (h *RolesHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req roleRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	if err := h.roles.UpdateRole(r.Context(), id, req.Name, req.Description); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"role_id": id}))
}

func (h *RolesHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.roles.DeleteRole(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"role_id": id}))
}

func (h *RolesHandler) rolePermissions(w http.ResponseWriter, r *http.Request, id string) {
	permissions, err := h.roles.RolePermissions(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]any, 0, len(permissions))
	for _, p := range permissions {
		out = append(out, permissionToMap(p))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": len(out)}))
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

func (h *RolesHandler) setRolePermissions(w http.ResponseWriter, r *http.Request, id string) {
	var req rolePermissionsRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	if err := h.roles.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"role_id": id, "permission_count": len(req.PermissionIDs)}))
}
