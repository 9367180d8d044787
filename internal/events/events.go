package events

// TenantCreated 租户注册成功后发布的事件
// 携带开通流水线所需的全部信息（管理员密码只携带 bcrypt 哈希，
// 明文绝不进入事件存储）
type TenantCreated struct {
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`

	AdminEmail        string `json:"admin_email"`
	AdminPasswordHash string `json:"admin_password_hash"`
	AdminFirstName    string `json:"admin_first_name"`
	AdminLastName     string `json:"admin_last_name"`
}
