package repository

import (
	"context"
	"database/sql"
	"errors"

	"crm-auth/internal/domain"
)

// 查询失败的具体种类，调用方用 errors.Is 区分
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrRoleNotFound   = errors.New("role not found")
	ErrUserNotFound   = errors.New("user not found")
)

// Querier 租户范围查询的执行接口
// *sql.DB、*sql.Conn、*sql.Tx 都满足；租户数据必须走
// NamespaceBinder 绑定后的 *sql.Conn，共享数据走连接池
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TenantsRepository 租户目录（共享 schema）
type TenantsRepository interface {
	FindByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
	Create(ctx context.Context, tenant *domain.Tenant) (string, error)
	SetStatus(ctx context.Context, tenantID, status string) error
	SetProvisioned(ctx context.Context, tenantID, schemaName string) error
	Delete(ctx context.Context, tenantID string) error
	List(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error)
}

// TenantFilters 租户列表过滤条件
type TenantFilters struct {
	Status string
	Search string
}

// RolesRepository 角色与权限（共享 schema）
type RolesRepository interface {
	GetRoleByID(ctx context.Context, roleID string) (*domain.Role, error)
	GetRoleByName(ctx context.Context, roleName string) (*domain.Role, error)
	GetRolesByIDs(ctx context.Context, roleIDs []string) ([]*domain.Role, error)
	ListRoles(ctx context.Context) ([]*domain.Role, error)
	CreateRole(ctx context.Context, role *domain.Role) (string, error)
	UpdateRole(ctx context.Context, roleID string, role *domain.Role) error
	DeleteRole(ctx context.Context, roleID string) error

	ListPermissionsForRoles(ctx context.Context, roleIDs []string) ([]*domain.Permission, error)
	ListPermissions(ctx context.Context) ([]*domain.Permission, error)
	EnsurePermission(ctx context.Context, resource, action, name string) (string, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// UsersRepository principal 存取（租户 schema）
// 所有方法都要求传入已绑定租户 schema 的 Querier：
// principal 行只能通过绑定到其租户 schema 的连接访问
type UsersRepository interface {
	GetByEmail(ctx context.Context, q Querier, email string) (*domain.User, error)
	GetByID(ctx context.Context, q Querier, userID string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, q Querier, email string) (bool, error)
	List(ctx context.Context, q Querier, search string, page, size int) ([]*domain.User, int, error)
	Create(ctx context.Context, q Querier, user *domain.User) (string, error)
	Update(ctx context.Context, q Querier, user *domain.User) error
	UpdateRoles(ctx context.Context, q Querier, userID string, roleIDs []string) error
}
