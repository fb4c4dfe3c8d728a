// internal/service/order/port/port.go
package port

import (
	"context"

	"atlas/internal/events"
)

// EventPublisher 订单服务的出站事件端口，发往 order-events 主题。
// 只能在本地事务提交后调用。
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// IdempotencyStore 消费端按 eventId 去重。
type IdempotencyStore interface {
	// Seen 为 true 表示事件已处理完成；Mark 只能在效果落地之后调用。
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
