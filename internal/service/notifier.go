package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier 开通结果回调（可选）
// 配置了 webhook 地址时，租户到达终态（ACTIVE / PROVISIONING_FAILED）
// 后向外部系统推送一条 JSON 通知；失败只记日志，不影响开通结果
type Notifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewNotifier 创建回调客户端；url 为空时返回 nil（调用方判空跳过）
func NewNotifier(url string, logger *zap.Logger) *Notifier {
	if url == "" {
		return nil
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)
	return &Notifier{client: client, url: url, logger: logger}
}

type tenantStatusNotification struct {
	Event     string `json:"event"`
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NotifyTenantStatus 推送租户终态通知
func (n *Notifier) NotifyTenantStatus(ctx context.Context, tenantID, subdomain, status string) {
	payload := tenantStatusNotification{
		Event:     "tenant.status_changed",
		TenantID:  tenantID,
		Subdomain: subdomain,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.Warn("Tenant status webhook failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return
	}
	if resp.IsError() {
		n.logger.Warn("Tenant status webhook rejected",
			zap.String("tenant_id", tenantID),
			zap.Int("status_code", resp.StatusCode()),
			zap.Error(fmt.Errorf("webhook returned %s", resp.Status())),
		)
	}
}
