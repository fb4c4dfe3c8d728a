// internal/service/inventory/port/port.go
package port

import (
	"context"

	"atlas/internal/events"
)

// EventPublisher 发布领域事件的出站端口。
// 实现方必须保证只在本地事务提交之后调用（publish-after-commit）。
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// IdempotencyStore 消费端幂等去重的端口。
// Seen 返回 true 表示这个 eventId 已经处理完成，应当直接 ack 跳过。
// Mark 只能在事件的效果落地之后调用：先标记后处理会在崩溃窗口里丢事件。
type IdempotencyStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
