package schema

import "strings"

// SharedSchema 跨租户共享数据所在的 schema（tenants/roles/permissions）
const SharedSchema = "public"

// Name 派生租户的 schema 名：tenant_<id>
// UUID 中的 '-' 映射为 '_'，保证是合法的 PostgreSQL 标识符
func Name(tenantID string) string {
	return "tenant_" + strings.ReplaceAll(tenantID, "-", "_")
}
