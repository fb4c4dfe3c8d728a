// internal/service/inventory/application/event_handler.go
package application

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/inventory/domain"
	"atlas/internal/service/inventory/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EventHandler 是库存服务在 Saga 中的被动入口：
// 消费订单侧和支付侧的事件，驱动预留的建立、确认与补偿。
//
// 传输层只承诺至少一次投递，所以进来先按 eventId 去重；
// 业务性失败（库存不足）转换为失败事件并 ack，只有基础设施
// 错误才向上返回触发重投递。
type EventHandler struct {
	svc       *ReservationManager
	idem      port.IdempotencyStore
	publisher port.EventPublisher
	tracer    trace.Tracer
}

func NewEventHandler(svc *ReservationManager, idem port.IdempotencyStore, publisher port.EventPublisher) *EventHandler {
	return &EventHandler{
		svc:       svc,
		idem:      idem,
		publisher: publisher,
		tracer:    otel.Tracer("inventory.application"),
	}
}

// Handle 处理一条已解析的事件。返回错误意味着消息会被重投递或进死信。
func (h *EventHandler) Handle(ctx context.Context, env *events.Envelope) error {
	ctx, span := h.tracer.Start(ctx, "inventory.HandleEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", env.EventID),
		attribute.String("event.type", string(env.EventType)),
		attribute.String("order.id", env.OrderID),
	)

	seen, err := h.idem.Seen(ctx, env.EventID)
	if err != nil {
		return errors.Wrap(err, "idempotency check")
	}
	if seen {
		logger.Ctx(ctx).Debug().Str("event_id", env.EventID).
			Str("event_type", string(env.EventType)).Msg("duplicate event, skipping")
		return nil
	}

	if err := h.dispatch(ctx, env); err != nil {
		// 没有标记可以撤销：失败的事件原样等待重投递。
		return err
	}

	// 标记在效果落地之后才写。崩溃窗口里最多重复处理一次，
	// Reserve/Confirm/Release 自身的重放保护会把它吸收掉。
	if err := h.idem.Mark(ctx, env.EventID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", env.EventID).
			Msg("failed to record idempotency mark, redelivery will reprocess")
	}
	return nil
}

func (h *EventHandler) dispatch(ctx context.Context, env *events.Envelope) error {
	payload, err := events.Decode(env)
	if err != nil {
		// 坏消息重投多少次都坏，直接进死信。
		return errors.Wrapf(err, "decode %s", env.EventType)
	}

	switch p := payload.(type) {
	case events.OrderCreated:
		return h.reserve(ctx, p.OrderID, p.Items)
	case events.InventoryReservationRequested:
		return h.reserve(ctx, p.OrderID, p.Items)
	case events.OrderCancelled:
		return h.release(ctx, p.OrderID, "order cancelled")
	case events.InventoryReleaseRequested:
		return h.release(ctx, p.OrderID, "release requested")
	case events.PaymentCompleted:
		return h.confirm(ctx, p.OrderID)
	case events.PaymentFailed:
		return h.release(ctx, p.OrderID, "payment failed")
	default:
		// 同一主题上还有不归库存服务管的事件类型。
		logger.Ctx(ctx).Debug().Str("event_type", string(env.EventType)).Msg("event not for inventory, ignoring")
		return nil
	}
}

func (h *EventHandler) reserve(ctx context.Context, orderID string, lines []events.LineItem) error {
	items := make([]domain.ReserveItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.ReserveItem{ProductID: l.ProductID, SKU: l.SKU, Quantity: l.Quantity})
	}

	_, err := h.svc.Reserve(ctx, orderID, items)
	if err == nil {
		return nil
	}

	// 业务性失败走事件通道回给订单服务，消息本身 ack 掉。
	var insuff *domain.InsufficientStockError
	switch {
	case errors.As(err, &insuff):
		return h.publishFailure(ctx, orderID, insuff.ProductID, events.ReasonInsufficientStock)
	case errors.Is(err, domain.ErrInventoryNotFound):
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("reservation for unknown product")
		return h.publishFailure(ctx, orderID, "", "ProductNotFound")
	case errors.Is(err, domain.ErrInvalidQuantity):
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("reservation with invalid quantity")
		return h.publishFailure(ctx, orderID, "", "InvalidQuantity")
	default:
		return err
	}
}

func (h *EventHandler) confirm(ctx context.Context, orderID string) error {
	err := h.svc.Confirm(ctx, orderID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrReservationExpired):
		// 支付相对 TTL 来得太晚，预留已被清扫。份额早已归还，
		// 订单侧会收到此前的 InventoryReleased，这里只能记录时序违例。
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).
			Msg("🛑 payment arrived after reservation expired, confirm rejected")
		return nil
	case errors.Is(err, domain.ErrReservationNotFound):
		logger.Ctx(ctx).Warn().Str("order_id", orderID).Msg("payment completed for order with no reservations")
		return nil
	default:
		return err
	}
}

func (h *EventHandler) release(ctx context.Context, orderID, reason string) error {
	err := h.svc.Release(ctx, orderID, reason)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrReservationNotFound):
		// 订单在预留建立前就取消了，无事可做。
		logger.Ctx(ctx).Info().Str("order_id", orderID).Str("reason", reason).
			Msg("release for order with no reservations, ignoring")
		return nil
	default:
		return err
	}
}

func (h *EventHandler) publishFailure(ctx context.Context, orderID, productID, reason string) error {
	env, err := events.NewEnvelope(events.TypeInventoryReservationFailed, sourceName, orderID,
		events.InventoryReservationFailed{
			OrderID:   orderID,
			ProductID: productID,
			Reason:    reason,
		})
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(ctx, env); err != nil {
		return errors.Wrap(err, "publish InventoryReservationFailed")
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("reason", reason).
		Msg("reservation failed, failure event published")
	return nil
}
