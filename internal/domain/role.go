package domain

// 平台内置角色名
const (
	RoleSuperAdmin = "ROLE_SUPER_ADMIN" // 平台超级管理员，绕过所有权限检查
	RoleAdmin      = "ROLE_ADMIN"       // 租户管理员（注册时的引导角色）
)

// Role 角色领域模型（对应共享 schema 的 roles 表）
// 角色跨租户共享，principal 只通过 role_id 引用
type Role struct {
	RoleID      string `db:"role_id"`   // UUID, PRIMARY KEY
	Name        string `db:"role_name"` // VARCHAR(100), UNIQUE, NOT NULL
	Description string `db:"description"`

	// 系统角色标识：系统角色不可修改、不可删除
	IsSystem bool `db:"is_system"` // NOT NULL DEFAULT FALSE
}
