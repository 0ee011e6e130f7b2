// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	stream Stream
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, stream string, maxLen int64) *Producer {
	if stream == "" {
		stream = string(StreamSessionEvents)
	}
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		stream: Stream(stream),
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishSessionEvent 发布会话生命周期事件
func (p *Producer) PublishSessionEvent(ctx context.Context, eventType string, event *SessionEventMessage) (string, error) {
	msg, err := NewMessage(event.SessionID, eventType, event.WorkflowID, event.SessionID, event)
	if err != nil {
		return "", err
	}

	msg.SetMetadata("version", fmt.Sprintf("%d", event.Version))

	return p.Publish(ctx, p.stream, msg)
}
