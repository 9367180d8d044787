package repository

import (
	"context"
	"database/sql"
	"fmt"

	"crm-auth/internal/domain"

	"github.com/lib/pq"
)

// PostgresUsersRepository principal Repository实现
// users 表不带 schema 前缀：行落在哪个租户 schema 由传入的
// Querier（NamespaceBinder 绑定后的连接）的 search_path 决定
type PostgresUsersRepository struct{}

// NewPostgresUsersRepository 创建 principal Repository
func NewPostgresUsersRepository() *PostgresUsersRepository {
	return &PostgresUsersRepository{}
}

// 确保实现了接口
var _ UsersRepository = (*PostgresUsersRepository)(nil)

const userColumns = `
	user_id::text,
	first_name,
	last_name,
	email,
	password_hash,
	enabled,
	locked,
	role_ids,
	created_at,
	updated_at
`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var roleIDs pq.StringArray
	err := row.Scan(
		&user.UserID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&user.Enabled,
		&user.Locked,
		&roleIDs,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.RoleIDs = roleIDs
	return &user, nil
}

// GetByEmail 按 email 查询 principal（schema 内唯一，大小写不敏感）
func (r *PostgresUsersRepository) GetByEmail(ctx context.Context, q Querier, email string) (*domain.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	user, err := scanUser(q.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: email=%s", ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByID 按 user_id 查询 principal
func (r *PostgresUsersRepository) GetByID(ctx context.Context, q Querier, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1::uuid`

	user, err := scanUser(q.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: user_id=%s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ExistsByEmail 检查 email 是否已被占用
func (r *PostgresUsersRepository) ExistsByEmail(ctx context.Context, q Querier, email string) (bool, error) {
	if email == "" {
		return false, fmt.Errorf("email is required")
	}

	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// List 查询 schema 内的 principal 列表（支持分页、姓名/email 搜索）
func (r *PostgresUsersRepository) List(ctx context.Context, q Querier, search string, page, size int) ([]*domain.User, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	whereClause := ""
	args := []any{}
	argIdx := 1

	if search != "" {
		whereClause = fmt.Sprintf(
			"WHERE (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+search+"%")
		argIdx++
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM users %s`, whereClause)
	var total int
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+userColumns+`
		FROM users
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIdx, argIdx+1)

	args = append(args, size, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, total, nil
}

// Create 在绑定的租户 schema 内创建 principal
// 幂等：email 冲突时返回已存在行的 id（at-least-once 开通重跑）
func (r *PostgresUsersRepository) Create(ctx context.Context, q Querier, user *domain.User) (string, error) {
	if user == nil {
		return "", fmt.Errorf("user is required")
	}
	if user.Email == "" {
		return "", fmt.Errorf("email is required")
	}
	if user.PasswordHash == "" {
		return "", fmt.Errorf("password_hash is required")
	}

	var userID string
	err := q.QueryRowContext(ctx, `
		INSERT INTO users (first_name, last_name, email, password_hash, enabled, locked, role_ids)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7::uuid[])
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING user_id::text
	`,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.Enabled,
		user.Locked,
		pq.Array(user.RoleIDs),
	).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return userID, nil
}

// Update 整行回写 principal（调用方先 GetByID 读出再改写）
// password_hash 不在此更新，凭证变更走独立路径
func (r *PostgresUsersRepository) Update(ctx context.Context, q Querier, user *domain.User) error {
	if user == nil || user.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if user.Email == "" {
		return fmt.Errorf("email is required")
	}

	result, err := q.ExecContext(ctx, `
		UPDATE users
		SET first_name = $2,
		    last_name = $3,
		    email = lower($4),
		    enabled = $5,
		    locked = $6,
		    role_ids = $7::uuid[],
		    updated_at = now()
		WHERE user_id = $1::uuid
	`,
		user.UserID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Enabled,
		user.Locked,
		pq.Array(user.RoleIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user_id=%s", ErrUserNotFound, user.UserID)
	}
	return nil
}

// UpdateRoles 整体替换 principal 的角色引用
func (r *PostgresUsersRepository) UpdateRoles(ctx context.Context, q Querier, userID string, roleIDs []string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	result, err := q.ExecContext(ctx,
		`UPDATE users SET role_ids = $2::uuid[], updated_at = now() WHERE user_id = $1::uuid`,
		userID, pq.Array(roleIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to update user roles: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user_id=%s", ErrUserNotFound, userID)
	}
	return nil
}
