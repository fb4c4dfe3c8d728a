// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"atlas/internal/events"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sourceName = "order-service"

// OrderService 承担订单的同步操作：下单、取消、发货、送达。
// Saga 的推进走在 SagaEventHandler 里，这里只负责发起。
type OrderService struct {
	repo      domain.OrderRepository
	publisher port.EventPublisher
	tracer    trace.Tracer
}

func NewOrderService(repo domain.OrderRepository, publisher port.EventPublisher) *OrderService {
	return &OrderService{
		repo:      repo,
		publisher: publisher,
		tracer:    otel.Tracer("order.application"),
	}
}

// CreateOrder 落库订单后发布 OrderCreated，Saga 从这里开始。
// 先持久化再发布：崩在两步之间最多丢一次发布，对账任务能补发，
// 反过来则会出现没有订单的预留。
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer span.End()

	userID, items, addr := req.toDomain()
	order, err := domain.NewOrder(userID, items, addr, req.Currency)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, errors.Wrap(err, "persist order")
	}

	lines := make([]events.LineItem, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, events.LineItem{ProductID: it.ProductID, SKU: it.SKU, Quantity: it.Quantity})
	}
	s.publish(ctx, events.TypeOrderCreated, order.ID, events.OrderCreated{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       lines,
		ShippingAddress: events.ShippingAddress{
			RecipientName: order.RecipientName,
			StreetAddress: order.StreetAddress,
			City:          order.City,
			Country:       order.Country,
		},
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
	})

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("order_number", order.OrderNumber).
		Int64("total", order.TotalAmount).Msg("✅ order created, saga started")
	return order, nil
}

// CancelOrder 用户主动取消。订单进入补偿，实际的取消终态
// 等库存侧的 InventoryReleased 回来后由 Saga 处理器落下。
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.StartCompensation(reason); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, errors.Wrap(err, "persist cancellation")
	}

	s.publish(ctx, events.TypeOrderCancelled, order.ID, events.OrderCancelled{
		OrderID:      order.ID,
		CancelledAt:  time.Now().UTC(),
		CancelReason: reason,
	})
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("reason", reason).
		Msg("order cancellation requested, compensation started")
	return order, nil
}

// ShipOrder 发货。
func (s *OrderService) ShipOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, "order.ShipOrder", (*domain.Order).Ship)
}

// DeliverOrder 确认送达。
func (s *OrderService) DeliverOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, "order.DeliverOrder", (*domain.Order).Deliver)
}

func (s *OrderService) transition(ctx context.Context, orderID, spanName string, fn func(*domain.Order) error) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := fn(order); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("status", string(order.Status)).
		Msg("order status advanced")
	return order, nil
}

// GetOrder 按 ID 查询。
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.FindByID(ctx, orderID)
}

// GetOrderByNumber 按订单号查询。
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.repo.FindByOrderNumber(ctx, number)
}

// ListOrders 查询某个用户的订单。
func (s *OrderService) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error) {
	return s.repo.FindByUser(ctx, userID, limit, offset)
}

func (s *OrderService) publish(ctx context.Context, t events.Type, orderID string, payload interface{}) {
	env, err := events.NewEnvelope(t, sourceName, orderID, payload)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(t)).Msg("failed to build event envelope")
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(t)).
			Str("order_id", orderID).Msg("🚨 failed to publish event after commit")
	}
}
