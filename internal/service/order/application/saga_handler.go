// internal/service/order/application/saga_handler.go
package application

import (
	"context"
	"fmt"

	"atlas/internal/events"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SagaEventHandler 消费库存侧和支付侧的事件，推进订单行上的 Saga 投影。
//
// 跨主题的事件没有全局顺序保证，所以每个状态推进都是
// 显式的状态机转移：不合法的转移按重放/乱序处理，记日志后 ack，
// 只有基础设施错误才触发重投递。
type SagaEventHandler struct {
	repo   domain.OrderRepository
	idem   port.IdempotencyStore
	tracer trace.Tracer
}

func NewSagaEventHandler(repo domain.OrderRepository, idem port.IdempotencyStore) *SagaEventHandler {
	return &SagaEventHandler{
		repo:   repo,
		idem:   idem,
		tracer: otel.Tracer("order.application"),
	}
}

// Handle 处理一条已解析的事件。
func (h *SagaEventHandler) Handle(ctx context.Context, env *events.Envelope) error {
	ctx, span := h.tracer.Start(ctx, "order.HandleSagaEvent", trace.WithSpanKind(trace.SpanKindConsumer))
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

	// 标记在状态转移落库之后才写，崩溃窗口里的重复由转移守卫吸收。
	if err := h.idem.Mark(ctx, env.EventID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", env.EventID).
			Msg("failed to record idempotency mark, redelivery will reprocess")
	}
	return nil
}

func (h *SagaEventHandler) dispatch(ctx context.Context, env *events.Envelope) error {
	payload, err := events.Decode(env)
	if err != nil {
		return errors.Wrapf(err, "decode %s", env.EventType)
	}

	switch p := payload.(type) {
	case events.InventoryReserved:
		return h.apply(ctx, p.OrderID, "stock reserved", func(o *domain.Order) error {
			return o.MarkStockReserved()
		})
	case events.InventoryReservationFailed:
		// 库存侧什么都没占住，不会再有 InventoryReleased，直接取消到终态。
		reason := fmt.Sprintf("reservation failed: %s", p.Reason)
		return h.apply(ctx, p.OrderID, "reservation failed", func(o *domain.Order) error {
			if err := o.StartCompensation(reason); err != nil {
				return err
			}
			return o.MarkCancelled()
		})
	case events.PaymentCompleted:
		return h.apply(ctx, p.OrderID, "payment completed", func(o *domain.Order) error {
			return o.MarkPaid()
		})
	case events.PaymentFailed:
		// 预留还占着份额，等库存释放事件回来再落取消终态。
		reason := fmt.Sprintf("payment failed: %s", p.ErrorCode)
		return h.apply(ctx, p.OrderID, "payment failed", func(o *domain.Order) error {
			return o.StartCompensation(reason)
		})
	case events.InventoryConfirmed:
		return h.apply(ctx, p.OrderID, "inventory confirmed", func(o *domain.Order) error {
			return o.MarkFulfilling()
		})
	case events.InventoryReleased:
		return h.apply(ctx, p.OrderID, "inventory released", func(o *domain.Order) error {
			// 两种来路：补偿完成，或预留超时被清扫。
			if o.SagaState != domain.SagaStateCompensating {
				if err := o.StartCompensation("reservation expired"); err != nil {
					return err
				}
			}
			return o.MarkCancelled()
		})
	default:
		logger.Ctx(ctx).Debug().Str("event_type", string(env.EventType)).Msg("event not for order saga, ignoring")
		return nil
	}
}

// apply 加载订单、执行转移、保存。乱序/重放造成的非法转移
// 以及未知订单都按告警 ack 处理，重投递解决不了它们。
func (h *SagaEventHandler) apply(ctx context.Context, orderID, action string, fn func(*domain.Order) error) error {
	order, err := h.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Ctx(ctx).Warn().Str("order_id", orderID).Str("action", action).
				Msg("saga event for unknown order, ignoring")
			return nil
		}
		return err
	}

	if err := fn(order); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Str("action", action).
				Str("saga_state", string(order.SagaState)).Msg("🛑 out-of-order saga event, ignoring")
			return nil
		}
		return err
	}

	if err := h.repo.Save(ctx, order); err != nil {
		return errors.Wrapf(err, "persist saga state for order %s", orderID)
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("action", action).
		Str("saga_state", string(order.SagaState)).Str("status", string(order.Status)).
		Msg("saga state advanced")
	return nil
}
