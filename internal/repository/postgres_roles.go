package repository

import (
	"context"
	"database/sql"
	"fmt"

	"crm-auth/internal/domain"

	"github.com/lib/pq"
)

// PostgresRolesRepository 角色与权限Repository实现
// roles / permissions / role_permissions 都在共享 schema，
// 任何租户 schema 绑定都不影响这里的查询（表名显式带 public 前缀）
type PostgresRolesRepository struct {
	db *sql.DB
}

// NewPostgresRolesRepository 创建角色Repository
func NewPostgresRolesRepository(db *sql.DB) *PostgresRolesRepository {
	return &PostgresRolesRepository{db: db}
}

// 确保实现了接口
var _ RolesRepository = (*PostgresRolesRepository)(nil)

// GetRoleByID 查询单个角色
func (r *PostgresRolesRepository) GetRoleByID(ctx context.Context, roleID string) (*domain.Role, error) {
	if roleID == "" {
		return nil, fmt.Errorf("role_id is required")
	}

	var role domain.Role
	err := r.db.QueryRowContext(ctx, `
		SELECT role_id::text, role_name, description, is_system
		FROM public.roles
		WHERE role_id = $1::uuid
	`, roleID).Scan(&role.RoleID, &role.Name, &role.Description, &role.IsSystem)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: role_id=%s", ErrRoleNotFound, roleID)
		}
		return nil, fmt.Errorf("failed to query role: %w", err)
	}
	return &role, nil
}

// GetRoleByName 通过角色名查询（程序引用入口，如 ROLE_ADMIN）
func (r *PostgresRolesRepository) GetRoleByName(ctx context.Context, roleName string) (*domain.Role, error) {
	if roleName == "" {
		return nil, fmt.Errorf("role_name is required")
	}

	var role domain.Role
	err := r.db.QueryRowContext(ctx, `
		SELECT role_id::text, role_name, description, is_system
		FROM public.roles
		WHERE role_name = $1
	`, roleName).Scan(&role.RoleID, &role.Name, &role.Description, &role.IsSystem)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: role_name=%s", ErrRoleNotFound, roleName)
		}
		return nil, fmt.Errorf("failed to query role: %w", err)
	}
	return &role, nil
}

// GetRolesByIDs 批量查询角色（principal 的 role_ids 解析）
func (r *PostgresRolesRepository) GetRolesByIDs(ctx context.Context, roleIDs []string) ([]*domain.Role, error) {
	if len(roleIDs) == 0 {
		return []*domain.Role{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT role_id::text, role_name, description, is_system
		FROM public.roles
		WHERE role_id = ANY($1::uuid[])
	`, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := []*domain.Role{}
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.RoleID, &role.Name, &role.Description, &role.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

// ListRoles 查询全部角色
func (r *PostgresRolesRepository) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT role_id::text, role_name, description, is_system
		FROM public.roles
		ORDER BY is_system DESC, role_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []*domain.Role{}
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.RoleID, &role.Name, &role.Description, &role.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

// CreateRole 创建角色
// 角色名唯一性由唯一约束保证；业务规则（系统角色保护）在 Service 层
func (r *PostgresRolesRepository) CreateRole(ctx context.Context, role *domain.Role) (string, error) {
	if role == nil {
		return "", fmt.Errorf("role is required")
	}
	if role.Name == "" {
		return "", fmt.Errorf("role_name is required")
	}

	var roleID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO public.roles (role_name, description, is_system)
		VALUES ($1, $2, $3)
		RETURNING role_id::text
	`, role.Name, role.Description, role.IsSystem).Scan(&roleID)
	if err != nil {
		return "", fmt.Errorf("failed to create role: %w", err)
	}
	return roleID, nil
}

// UpdateRole 更新角色名称/描述（部分更新）
func (r *PostgresRolesRepository) UpdateRole(ctx context.Context, roleID string, role *domain.Role) error {
	if roleID == "" {
		return fmt.Errorf("role_id is required")
	}
	if role == nil {
		return fmt.Errorf("role is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE public.roles
		SET role_name = COALESCE(NULLIF($2, ''), role_name),
		    description = COALESCE(NULLIF($3, ''), description)
		WHERE role_id = $1::uuid
	`, roleID, role.Name, role.Description)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: role_id=%s", ErrRoleNotFound, roleID)
	}
	return nil
}

// DeleteRole 删除角色（role_permissions 级联删除）
func (r *PostgresRolesRepository) DeleteRole(ctx context.Context, roleID string) error {
	if roleID == "" {
		return fmt.Errorf("role_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM public.roles WHERE role_id = $1::uuid`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: role_id=%s", ErrRoleNotFound, roleID)
	}
	return nil
}

// ListPermissionsForRoles 聚合多个角色的权限并集
func (r *PostgresRolesRepository) ListPermissionsForRoles(ctx context.Context, roleIDs []string) ([]*domain.Permission, error) {
	if len(roleIDs) == 0 {
		return []*domain.Permission{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT p.permission_id::text, p.resource, p.action, p.name
		FROM public.permissions p
		JOIN public.role_permissions rp ON rp.permission_id = p.permission_id
		WHERE rp.role_id = ANY($1::uuid[])
	`, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// ListPermissions 查询权限目录
func (r *PostgresRolesRepository) ListPermissions(ctx context.Context) ([]*domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT permission_id::text, resource, action, name
		FROM public.permissions
		ORDER BY resource, action
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// EnsurePermission 幂等创建权限（(resource, action) 唯一）
func (r *PostgresRolesRepository) EnsurePermission(ctx context.Context, resource, action, name string) (string, error) {
	if resource == "" || action == "" {
		return "", fmt.Errorf("resource and action are required")
	}

	var permissionID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO public.permissions (resource, action, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource, action)
		DO UPDATE SET name = EXCLUDED.name
		RETURNING permission_id::text
	`, resource, action, name).Scan(&permissionID)
	if err != nil {
		return "", fmt.Errorf("failed to ensure permission: %w", err)
	}
	return permissionID, nil
}

// SetRolePermissions 整体替换角色的权限集合
func (r *PostgresRolesRepository) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if roleID == "" {
		return fmt.Errorf("role_id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM public.role_permissions WHERE role_id = $1::uuid`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	for _, permissionID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO public.role_permissions (role_id, permission_id)
			VALUES ($1::uuid, $2::uuid)
			ON CONFLICT DO NOTHING
		`, roleID, permissionID); err != nil {
			return fmt.Errorf("failed to attach permission: %w", err)
		}
	}

	return tx.Commit()
}

func scanPermissions(rows *sql.Rows) ([]*domain.Permission, error) {
	permissions := []*domain.Permission{}
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.PermissionID, &p.Resource, &p.Action, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return permissions, nil
}
