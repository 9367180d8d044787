package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"crm-auth/internal/repository"
	"crm-auth/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// writeServiceError 把 service 层错误映射为 HTTP 状态码 + Result
// 未识别的错误一律 500，不把内部细节透给客户端
func writeServiceError(w http.ResponseWriter, err error) {
	var subErr *service.SubdomainError
	var denied *service.AccessDeniedError

	switch {
	case errors.As(err, &subErr):
		writeJSON(w, http.StatusBadRequest, Fail(subErr.Error()))
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, Fail(denied.Error()))
	case errors.Is(err, service.ErrTenantAlreadyExists),
		errors.Is(err, service.ErrEmailAlreadyExists),
		errors.Is(err, service.ErrRoleAlreadyExists):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrAccountLocked):
		writeJSON(w, http.StatusUnauthorized, Fail("invalid credentials"))
	case errors.Is(err, service.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, TokenExpired("invalid or expired token"))
	case errors.Is(err, service.ErrTenantNotActive):
		writeJSON(w, http.StatusForbidden, Fail("tenant is not active"))
	case errors.Is(err, service.ErrSystemRoleImmutable):
		writeJSON(w, http.StatusForbidden, Fail(err.Error()))
	case errors.Is(err, service.ErrInvalidStatusTransition):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, repository.ErrTenantNotFound),
		errors.Is(err, repository.ErrRoleNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	default:
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
