package domain

// Permission 权限领域模型（对应共享 schema 的 permissions 表）
// (resource, action) 组合唯一，如 (CUSTOMERS, READ)
type Permission struct {
	PermissionID string `db:"permission_id"` // UUID, PRIMARY KEY
	Resource     string `db:"resource"`      // VARCHAR(100), NOT NULL
	Action       string `db:"action"`        // VARCHAR(50), NOT NULL
	Name         string `db:"name"`          // 展示名
}
