// internal/service/payment/port/port.go
package port

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/service/payment/domain"
)

// EventPublisher 把事件信封发到 payment-events。
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// IdempotencyStore 事件消费的去重标记。
type IdempotencyStore interface {
	// Seen 为 true 表示事件已处理完成；Mark 只能在效果落地之后调用。
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Gateway 对外部支付网关的最小抽象。
// 拒绝扣款返回 *domain.GatewayDeclineError，其它错误视为瞬时故障。
type Gateway interface {
	Charge(ctx context.Context, payment *domain.Payment) (transactionID string, err error)
}
