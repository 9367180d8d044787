package domain

import (
	"time"

	"github.com/lib/pq"
)

// User principal 领域模型（对应各租户 schema 的 users 表）
// 没有 tenant_id 外键：租户归属由行所在的 schema 隐式决定
// 角色通过 role_ids 引用共享 schema 的 roles 表（跨 schema 只存 id）
type User struct {
	UserID    string `db:"user_id"` // UUID, PRIMARY KEY
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"` // UNIQUE（schema 内唯一）

	PasswordHash string `db:"password_hash"` // bcrypt, NOT NULL

	Enabled bool `db:"enabled"` // NOT NULL DEFAULT TRUE
	Locked  bool `db:"locked"`  // NOT NULL DEFAULT FALSE

	RoleIDs pq.StringArray `db:"role_ids"` // uuid[]

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
