// internal/service/payment/domain/repository.go
package domain

import "context"

// PaymentRepository 支付单仓储。
type PaymentRepository interface {
	// Create 持久化新支付单。orderId 冲突返回 ErrDuplicatePayment。
	Create(ctx context.Context, payment *Payment) error
	Save(ctx context.Context, payment *Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
}
