package domain

// Identity 已认证 principal 的富化只读视图
// 认证时一次性组装（principal + 租户目录 + 角色名），
// 请求处理过程中不再回表，授权检查只依赖这份快照
type Identity struct {
	User *User

	TenantID     string
	TenantName   string
	TenantStatus string

	// 角色名列表，与 User.RoleIDs 一一对应
	RoleNames []string
}

// HasRole 判断 principal 是否持有指定角色名
func (i *Identity) HasRole(roleName string) bool {
	for _, name := range i.RoleNames {
		if name == roleName {
			return true
		}
	}
	return false
}

// IsSuperAdmin 平台超级管理员判定
func (i *Identity) IsSuperAdmin() bool {
	return i.HasRole(RoleSuperAdmin)
}
