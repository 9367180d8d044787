package database

import (
	"database/sql"
	"fmt"
	"time"

	"crm-auth/internal/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB 打开共享的PostgreSQL连接池
// NamespaceBinder 会从这个池里独占 checkout 连接并改写 search_path，
// 所以 MaxConns 必须大于开通 worker 数 + 预期并发的租户内请求数，
// 否则绑定会在池上排队
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	// 定期换连接，避免长寿连接攒下奇怪的会话状态
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
