package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Bus TenantCreated 事件总线（Redis Streams）
// 消费者组 + XACK 提供进程重启后的 at-least-once 投递，
// 消费端的开通处理必须幂等
type Bus struct {
	client *redis.Client
	stream string
	group  string
	logger *zap.Logger
}

func NewBus(client *redis.Client, stream, group string, logger *zap.Logger) *Bus {
	return &Bus{client: client, stream: stream, group: group, logger: logger}
}

// Message 带投递 id 的事件，处理完成后用 id 做 XACK
type Message struct {
	ID    string
	Event TenantCreated
}

// EnsureGroup 创建消费者组（组已存在时忽略）
func (b *Bus) EnsureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Publish 发布 TenantCreated 事件
func (b *Bus) Publish(ctx context.Context, ev TenantCreated) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish tenant-created event: %w", err)
	}

	b.logger.Info("Published tenant-created event",
		zap.String("message_id", id),
		zap.String("tenant_id", ev.TenantID),
		zap.String("subdomain", ev.Subdomain),
	)
	return id, nil
}

// Consume 以 consumer 身份读取未投递的事件（阻塞最多 5 秒）
func (b *Bus) Consume(ctx context.Context, consumer string, count int64) ([]Message, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: consumer,
		Streams:  []string{b.stream, ">"},
		Count:    count,
		Block:    5 * time.Second,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var messages []Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["data"].(string)
			if !ok {
				// 无法解析的消息直接确认丢弃，避免反复重投
				b.logger.Warn("Dropping malformed stream message", zap.String("message_id", msg.ID))
				_ = b.Ack(ctx, msg.ID)
				continue
			}
			var ev TenantCreated
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				b.logger.Warn("Dropping undecodable stream message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				_ = b.Ack(ctx, msg.ID)
				continue
			}
			messages = append(messages, Message{ID: msg.ID, Event: ev})
		}
	}
	return messages, nil
}

// Ack 确认消息处理完成
func (b *Bus) Ack(ctx context.Context, messageID string) error {
	return b.client.XAck(ctx, b.stream, b.group, messageID).Err()
}
