package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crm-auth/internal/domain"
)

// PostgresTenantsRepository 租户目录Repository实现
// 只操作共享 schema（public）的 tenants 表，不做跨 schema join
type PostgresTenantsRepository struct {
	db *sql.DB
}

// NewPostgresTenantsRepository 创建租户目录Repository
func NewPostgresTenantsRepository(db *sql.DB) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{db: db}
}

// 确保实现了接口
var _ TenantsRepository = (*PostgresTenantsRepository)(nil)

const tenantColumns = `
	tenant_id::text,
	tenant_name,
	subdomain,
	status,
	schema_name,
	COALESCE(subscription_plan, '') as subscription_plan,
	created_at
`

func scanTenant(row interface{ Scan(...any) error }) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := row.Scan(
		&tenant.TenantID,
		&tenant.Name,
		&tenant.Subdomain,
		&tenant.Status,
		&tenant.SchemaName,
		&tenant.Plan,
		&tenant.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByID 根据tenant_id获取租户
func (r *PostgresTenantsRepository) FindByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM public.tenants WHERE tenant_id = $1::uuid`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: tenant_id=%s", ErrTenantNotFound, tenantID)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// FindBySubdomain 根据subdomain获取租户（大小写不敏感）
func (r *PostgresTenantsRepository) FindBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	if subdomain == "" {
		return nil, fmt.Errorf("subdomain is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM public.tenants WHERE lower(subdomain) = lower($1)`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, subdomain))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: subdomain=%s", ErrTenantNotFound, subdomain)
		}
		return nil, fmt.Errorf("failed to get tenant by subdomain: %w", err)
	}
	return tenant, nil
}

// Create 创建租户记录（id 由数据库分配）
// 注册工作流插入时 status=PROVISIONING，schema_name 为 NULL
func (r *PostgresTenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant == nil {
		return "", fmt.Errorf("tenant is required")
	}
	if tenant.Name == "" {
		return "", fmt.Errorf("tenant_name is required")
	}
	if tenant.Subdomain == "" {
		return "", fmt.Errorf("subdomain is required")
	}

	status := tenant.Status
	if status == "" {
		status = domain.TenantStatusProvisioning
	}

	var tenantID string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO public.tenants (tenant_name, subdomain, status, subscription_plan)
		 VALUES ($1, lower($2), $3, NULLIF($4, ''))
		 RETURNING tenant_id::text`,
		tenant.Name,
		tenant.Subdomain,
		status,
		tenant.Plan,
	).Scan(&tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to create tenant: %w", err)
	}

	return tenantID, nil
}

// SetStatus 更新租户生命周期状态
func (r *PostgresTenantsRepository) SetStatus(ctx context.Context, tenantID, status string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE public.tenants SET status = $2 WHERE tenant_id = $1::uuid`,
		tenantID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}
	return requireRowAffected(result, tenantID)
}

// SetProvisioned 开通成功：status=ACTIVE 并写入 schema_name
func (r *PostgresTenantsRepository) SetProvisioned(ctx context.Context, tenantID, schemaName string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if schemaName == "" {
		return fmt.Errorf("schema_name is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE public.tenants SET status = $2, schema_name = $3 WHERE tenant_id = $1::uuid`,
		tenantID, domain.TenantStatusActive, schemaName,
	)
	if err != nil {
		return fmt.Errorf("failed to mark tenant provisioned: %w", err)
	}
	return requireRowAffected(result, tenantID)
}

// Delete 硬删除租户记录
// 只用于注册失败补偿；正常生命周期内租户不删除
func (r *PostgresTenantsRepository) Delete(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM public.tenants WHERE tenant_id = $1::uuid`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return requireRowAffected(result, tenantID)
}

// List 查询租户列表（支持分页、状态过滤、名称搜索）
func (r *PostgresTenantsRepository) List(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	where := []string{}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(tenant_name ILIKE $%d OR subdomain ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM public.tenants %s`, whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+tenantColumns+`
		FROM public.tenants
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIdx, argIdx+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, total, nil
}

func requireRowAffected(result sql.Result, tenantID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: tenant_id=%s", ErrTenantNotFound, tenantID)
	}
	return nil
}
