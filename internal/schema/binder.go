package schema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Binder 把一个工作单元绑定到租户 schema
// 从连接池取出专属连接并切换 search_path，工作单元内所有
// 租户范围的查询都必须走这条连接；归还前必须 Release
type Binder struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewBinder(db *sql.DB, logger *zap.Logger) *Binder {
	return &Binder{db: db, logger: logger}
}

// BoundConn 已绑定租户 schema 的专属连接
type BoundConn struct {
	conn     *sql.Conn
	schema   string
	released bool
	logger   *zap.Logger
}

// Bind 为 tenantID 取出连接并执行 SET search_path TO tenant_<id>, public
// 绑定失败对整个工作单元是致命的：直接返回错误，不静默重试，
// 否则后续查询可能落在错误的 schema 上
func (b *Binder) Bind(ctx context.Context, tenantID string) (*BoundConn, error) {
	schemaName := Name(tenantID)

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for %s: %w", schemaName, err)
	}

	_, err = conn.ExecContext(ctx,
		fmt.Sprintf("SET search_path TO %s, %s", pq.QuoteIdentifier(schemaName), SharedSchema))
	if err != nil {
		// 切换失败的连接不能回池，直接废弃
		_ = conn.Raw(func(driverConn any) error { return driver.ErrBadConn })
		_ = conn.Close()
		return nil, fmt.Errorf("failed to bind schema %s: %w", schemaName, err)
	}

	b.logger.Debug("Schema bound", zap.String("schema", schemaName))

	return &BoundConn{conn: conn, schema: schemaName, logger: b.logger}, nil
}

// Conn 返回绑定后的连接，供租户范围的查询使用
func (bc *BoundConn) Conn() *sql.Conn {
	return bc.conn
}

// Schema 返回绑定的 schema 名
func (bc *BoundConn) Schema() string {
	return bc.schema
}

// Release 重置 search_path 并把连接归还连接池（幂等）
// 必须在工作单元的所有退出路径上调用（defer）；
// 重置失败的连接一律废弃，绝不能带着租户 search_path 回池
func (bc *BoundConn) Release() {
	if bc.released {
		return
	}
	bc.released = true

	// 用独立 context：请求被取消也必须完成重置
	_, err := bc.conn.ExecContext(context.Background(),
		fmt.Sprintf("SET search_path TO %s", SharedSchema))
	if err != nil {
		bc.logger.Error("Failed to reset search_path, discarding connection",
			zap.String("schema", bc.schema),
			zap.Error(err),
		)
		_ = bc.conn.Raw(func(driverConn any) error { return driver.ErrBadConn })
	}
	_ = bc.conn.Close()

	bc.logger.Debug("Schema binding released", zap.String("schema", bc.schema))
}
