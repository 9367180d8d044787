package service

import (
	"errors"
	"fmt"
)

// 同步路径的错误种类，HTTP 层用 errors.Is / errors.As 映射状态码
var (
	// 冲突类：调用方可据此渲染准确的提示
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrEmailAlreadyExists  = errors.New("email already exists")

	// 认证/授权类：永远以拒绝形式暴露，不降级
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountLocked      = errors.New("account is locked")
	ErrInvalidToken       = errors.New("invalid or expired token")

	// 租户状态：登录/刷新时重新读取目录（单一事实来源）后判定
	ErrTenantNotActive = errors.New("tenant is not active")
)

// SubdomainError 子域名校验失败（用户可修正）
type SubdomainError struct {
	Subdomain string
	Reason    string
}

func (e *SubdomainError) Error() string {
	return fmt.Sprintf("invalid subdomain %q: %s", e.Subdomain, e.Reason)
}

// AccessDeniedError 缺少 (resource, action) 权限
// 方法级授权装饰器原样向上传播
type AccessDeniedError struct {
	Resource string
	Action   string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: missing permission %s:%s", e.Resource, e.Action)
}
