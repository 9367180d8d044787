package httpapi

import (
	"net/http"
	"strings"

	"crm-auth/internal/domain"
	"crm-auth/internal/service"
)

// UsersHandler 租户内 principal 管理面
type UsersHandler struct {
	users *service.UserService
}

func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

func userToMap(user *domain.User) map[string]any {
	return map[string]any{
		"user_id":    user.UserID,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"email":      user.Email,
		"enabled":    user.Enabled,
		"locked":     user.Locked,
		"role_ids":   []string(user.RoleIDs),
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	}
}

func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/users":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/users/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/users/")
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
		case len(parts) == 2 && parts[1] == "activate" && r.Method == http.MethodPut:
			h.activate(w, r, id)
		case len(parts) == 2 && parts[1] == "deactivate" && r.Method == http.MethodPut:
			h.deactivate(w, r, id)
		case len(parts) == 2 && parts[1] == "roles" && r.Method == http.MethodPut:
			h.assignRoles(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)

	users, total, err := h.users.ListUsers(r.Context(), search, page, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]any, 0, len(users))
	for _, user := range users {
		out = append(out, userToMap(user))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": total}))
}

func (h *UsersHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(userToMap(user)))
}

func (h *UsersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, Fail("email and password are required"))
		return
	}

	user, err := h.users.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(userToMap(user)))
}

func (h *UsersHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req service.UpdateUserRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(userToMap(user)))
}

func (h *UsersHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"user_id": id}))
}

func (h *UsersHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	user, err := h.users.ActivateUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(userToMap(user)))
}

func (h *UsersHandler) deactivate(w http.ResponseWriter, r *http.Request, id string) {
	user, err := h.users.DeactivateUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(userToMap(user)))
}

type assignRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

func (h *UsersHandler) assignRoles(w http.ResponseWriter, r *http.Request, id string) {
	var req assignRolesRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	user, err := h.users.AssignRoles(r.Context(), id, req.RoleIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(userToMap(user)))
}
