package config

import (
	"os"
	"strconv"
	"time"
)

// Config crm-auth（多租户认证/租户开通服务）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	JWT          JWTConfig
	Provisioning ProvisioningConfig
	Bootstrap    BootstrapConfig
}

// DatabaseConfig PostgreSQL 连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 构建 lib/pq DSN
func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// JWTConfig 令牌签发配置
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// ProvisioningConfig 异步租户开通配置
type ProvisioningConfig struct {
	Stream        string // Redis Stream 名称（TenantCreated 事件）
	ConsumerGroup string
	Workers       int    // 开通 worker 数量
	WebhookURL    string // 可选：开通完成/失败的回调地址
}

// BootstrapConfig 平台 master 租户引导配置
// master 租户（subdomain "admin"）的超级管理员账号在首次启动时创建
type BootstrapConfig struct {
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "crmauth")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.JWT.Secret = getEnv("JWT_SECRET", "dev-secret-change-me")
	cfg.JWT.AccessTokenTTL = parseDuration(getEnv("JWT_ACCESS_TTL", "15m"), 15*time.Minute)
	cfg.JWT.RefreshTokenTTL = parseDuration(getEnv("JWT_REFRESH_TTL", "168h"), 168*time.Hour)

	cfg.Provisioning.Stream = getEnv("PROVISIONING_STREAM", "tenant-created")
	cfg.Provisioning.ConsumerGroup = getEnv("PROVISIONING_GROUP", "crm-auth-provisioner")
	cfg.Provisioning.Workers = parseInt(getEnv("PROVISIONING_WORKERS", "2"), 2)
	cfg.Provisioning.WebhookURL = getEnv("PROVISIONING_WEBHOOK_URL", "")

	cfg.Bootstrap.AdminEmail = getEnv("BOOTSTRAP_ADMIN_EMAIL", "admin@crm.local")
	cfg.Bootstrap.AdminPassword = getEnv("BOOTSTRAP_ADMIN_PASSWORD", "ChangeMe123!")
	cfg.Bootstrap.AdminFirstName = getEnv("BOOTSTRAP_ADMIN_FIRST_NAME", "Platform")
	cfg.Bootstrap.AdminLastName = getEnv("BOOTSTRAP_ADMIN_LAST_NAME", "Admin")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
