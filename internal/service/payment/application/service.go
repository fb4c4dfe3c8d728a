// internal/service/payment/application/service.go
package application

import (
	"context"
	"time"

	"atlas/internal/events"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/payment/domain"
	"atlas/internal/service/payment/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sourceName = "payment-service"

// PaymentService 支付边界适配器的应用层。
//
// OrderCreated 登记待扣款的支付单（金额快照），InventoryReserved
// 触发实际扣款。两步都以 orderId 上的唯一行做幂等锚点：
// 重放只会命中已有的行，已到终态的支付单直接重发结果事件。
type PaymentService struct {
	repo            domain.PaymentRepository
	gateway         port.Gateway
	publisher       port.EventPublisher
	defaultCurrency string
	tracer          trace.Tracer
}

func NewPaymentService(repo domain.PaymentRepository, gateway port.Gateway, publisher port.EventPublisher, defaultCurrency string) *PaymentService {
	return &PaymentService{
		repo:            repo,
		gateway:         gateway,
		publisher:       publisher,
		defaultCurrency: defaultCurrency,
		tracer:          otel.Tracer("payment.application"),
	}
}

// RegisterPayment 为新订单登记一笔 PENDING 支付单。
// 重复注册（事件重放）是空操作。
func (s *PaymentService) RegisterPayment(ctx context.Context, orderID string, amount int64, currency string) error {
	ctx, span := s.tracer.Start(ctx, "payment.RegisterPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if currency == "" {
		currency = s.defaultCurrency
	}
	payment, err := domain.NewPayment(orderID, amount, currency)
	if err != nil {
		return err
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) {
			logger.Ctx(ctx).Debug().Str("order_id", orderID).Msg("payment already registered, skipping")
			return nil
		}
		return errors.Wrap(err, "persist payment")
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int64("amount", amount).
		Msg("payment registered, awaiting stock reservation")
	return nil
}

// Charge 为已预留库存的订单扣款，并发布结果事件。
// 支付单已到终态时只重发结果事件，不会扣第二次。
func (s *PaymentService) Charge(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "payment.Charge")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Terminal() {
		logger.Ctx(ctx).Info().Str("order_id", orderID).Str("status", string(payment.Status)).
			Msg("payment already settled, republishing outcome")
		s.publishOutcome(ctx, payment)
		return nil
	}

	transactionID, err := s.gateway.Charge(ctx, payment)
	if err != nil {
		var decline *domain.GatewayDeclineError
		if errors.As(err, &decline) {
			if err := payment.MarkFailed(decline.Code); err != nil {
				return err
			}
			if err := s.repo.Save(ctx, payment); err != nil {
				return errors.Wrap(err, "persist declined payment")
			}
			logger.Ctx(ctx).Warn().Str("order_id", orderID).Str("error_code", decline.Code).
				Msg("🛑 payment declined by gateway")
			s.publishOutcome(ctx, payment)
			return nil
		}
		// 网关瞬时故障：不落状态，交给消费循环重试
		return errors.Wrap(err, "charge gateway")
	}

	if err := payment.MarkCompleted(transactionID); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, payment); err != nil {
		return errors.Wrap(err, "persist completed payment")
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("transaction_id", transactionID).
		Int64("amount", payment.Amount).Msg("✅ payment completed")
	s.publishOutcome(ctx, payment)
	return nil
}

// GetPaymentByOrder 按订单查询支付单。
func (s *PaymentService) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.FindByOrderID(ctx, orderID)
}

func (s *PaymentService) publishOutcome(ctx context.Context, payment *domain.Payment) {
	var (
		t       events.Type
		payload interface{}
	)
	switch payment.Status {
	case domain.PaymentStatusCompleted:
		t = events.TypePaymentCompleted
		payload = events.PaymentCompleted{
			PaymentID:     payment.ID,
			OrderID:       payment.OrderID,
			TransactionID: payment.TransactionID,
			Timestamp:     time.Now().UTC(),
		}
	case domain.PaymentStatusFailed:
		t = events.TypePaymentFailed
		payload = events.PaymentFailed{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			ErrorCode: payment.ErrorCode,
			Timestamp: time.Now().UTC(),
		}
	default:
		return
	}

	env, err := events.NewEnvelope(t, sourceName, payment.OrderID, payload)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(t)).Msg("failed to build event envelope")
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(t)).
			Str("order_id", payment.OrderID).Msg("🚨 failed to publish payment outcome after commit")
	}
}
