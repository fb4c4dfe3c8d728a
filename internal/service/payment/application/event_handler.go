// internal/service/payment/application/event_handler.go
package application

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/payment/domain"
	"atlas/internal/service/payment/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EventHandler 支付服务的事件入口。
type EventHandler struct {
	svc    *PaymentService
	idem   port.IdempotencyStore
	tracer trace.Tracer
}

func NewEventHandler(svc *PaymentService, idem port.IdempotencyStore) *EventHandler {
	return &EventHandler{
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("payment.application"),
	}
}

// Handle 处理一条已解析的事件。
func (h *EventHandler) Handle(ctx context.Context, env *events.Envelope) error {
	ctx, span := h.tracer.Start(ctx, "payment.HandleEvent", trace.WithSpanKind(trace.SpanKindConsumer))
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
		logger.Ctx(ctx).Debug().Str("event_id", env.EventID).Msg("duplicate event, skipping")
		return nil
	}

	if err := h.dispatch(ctx, env); err != nil {
		return err
	}

	// 标记在扣款结果落库之后才写，崩溃窗口里的重复由
	// orderId 唯一行和终态守卫吸收。
	if err := h.idem.Mark(ctx, env.EventID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", env.EventID).
			Msg("failed to record idempotency mark, redelivery will reprocess")
	}
	return nil
}

func (h *EventHandler) dispatch(ctx context.Context, env *events.Envelope) error {
	payload, err := events.Decode(env)
	if err != nil {
		return errors.Wrapf(err, "decode %s", env.EventType)
	}

	switch p := payload.(type) {
	case events.OrderCreated:
		return h.svc.RegisterPayment(ctx, p.OrderID, p.TotalAmount, p.Currency)
	case events.InventoryReserved:
		if err := h.svc.Charge(ctx, p.OrderID); err != nil {
			// 登记事件可能还没到：让消费循环重试，等 OrderCreated 先落地。
			if errors.Is(err, domain.ErrPaymentNotFound) {
				return errors.Wrapf(err, "payment for order %s not registered yet", p.OrderID)
			}
			return err
		}
		return nil
	default:
		logger.Ctx(ctx).Debug().Str("event_type", string(env.EventType)).Msg("event not for payment, ignoring")
		return nil
	}
}
