package domain

import (
	"database/sql"
	"time"
)

// 租户生命周期状态
const (
	TenantStatusProvisioning       = "PROVISIONING"
	TenantStatusActive             = "ACTIVE"
	TenantStatusProvisioningFailed = "PROVISIONING_FAILED"
	TenantStatusSuspended          = "SUSPENDED"
)

// Tenant 租户领域模型（对应共享 schema 的 tenants 表）
// schema_name 仅在开通成功后写入（tenant_<id>）
type Tenant struct {
	// 主键
	TenantID string `db:"tenant_id"` // UUID, PRIMARY KEY

	// 基本信息
	Name      string `db:"tenant_name"` // VARCHAR(100), NOT NULL
	Subdomain string `db:"subdomain"`   // VARCHAR(63), UNIQUE, NOT NULL, lowercase

	// 状态
	Status string `db:"status"` // VARCHAR(50), NOT NULL

	// 存储隔离
	SchemaName sql.NullString `db:"schema_name"` // nullable, 开通成功前为 NULL

	// 订阅
	Plan string `db:"subscription_plan"` // VARCHAR(50), nullable

	CreatedAt time.Time `db:"created_at"`
}
