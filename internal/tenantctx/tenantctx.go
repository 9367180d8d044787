package tenantctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotSet 表示当前工作单元没有绑定租户上下文
// 这是编程契约违规（入口层漏设），调用方应视为致命错误，不可重试
var ErrNotSet = errors.New("tenant context is not set")

type ctxKey struct{}

// WithTenant 返回绑定了 tenantID 的派生 context
// tenantID 必须是合法 UUID；每个设置了租户上下文的入口
// 必须保证所有退出路径都不再复用该派生 context
func WithTenant(ctx context.Context, tenantID string) (context.Context, error) {
	if tenantID == "" {
		return ctx, fmt.Errorf("tenant_id is required")
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return ctx, fmt.Errorf("invalid tenant_id %q: %w", tenantID, err)
	}
	return context.WithValue(ctx, ctxKey{}, tenantID), nil
}

// TenantID 返回当前租户 id；未设置时返回 ("", false)
func TenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// RequireTenantID 返回当前租户 id，未设置时返回 ErrNotSet
func RequireTenantID(ctx context.Context) (string, error) {
	id, ok := TenantID(ctx)
	if !ok {
		return "", ErrNotSet
	}
	return id, nil
}

// Clear 返回去除了租户绑定的派生 context（幂等）
func Clear(ctx context.Context) context.Context {
	if _, ok := TenantID(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, "")
}

// RunWithTenant 在绑定了 tenantID 的派生 context 上执行 fn
// 外层 context 不受影响，因此天然支持嵌套：fn 返回（包括出错）后，
// 调用方继续使用原 context，外层租户绑定原样保留
func RunWithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	scoped, err := WithTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return fn(scoped)
}
