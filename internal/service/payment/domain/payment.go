// internal/service/payment/domain/payment.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PaymentStatus 支付单的生命周期状态。
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"   // 已登记，等待库存预留后扣款
	PaymentStatusCompleted PaymentStatus = "COMPLETED" // 扣款成功，终态
	PaymentStatusFailed    PaymentStatus = "FAILED"    // 网关拒绝，终态
)

// Payment 支付单。orderId 上的唯一索引是幂等锚点：
// 同一订单的重复事件只会命中已有的行，绝不会扣两次款。
type Payment struct {
	ID            string        `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID       string        `gorm:"type:char(36);not null;uniqueIndex" json:"orderId"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Currency      string        `gorm:"size:8;not null" json:"currency"`
	Status        PaymentStatus `gorm:"size:20;not null" json:"status"`
	TransactionID string        `gorm:"size:64" json:"transactionId,omitempty"`
	ErrorCode     string        `gorm:"size:64" json:"errorCode,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payments"
}

// NewPayment 登记一笔待扣款的支付单。
func NewPayment(orderID string, amount int64, currency string) (*Payment, error) {
	if orderID == "" {
		return nil, errors.Wrap(ErrInvalidPayment, "missing orderId")
	}
	if amount < 0 {
		return nil, errors.Wrap(ErrInvalidPayment, "negative amount")
	}
	return &Payment{
		ID:       uuid.New().String(),
		OrderID:  orderID,
		Amount:   amount,
		Currency: currency,
		Status:   PaymentStatusPending,
	}, nil
}

// Terminal 支付单是否已到终态。
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// MarkCompleted 记录网关成功的交易号。重放时是空操作。
func (p *Payment) MarkCompleted(transactionID string) error {
	if p.Status == PaymentStatusCompleted {
		return nil
	}
	if p.Status != PaymentStatusPending {
		return errors.Wrapf(ErrInvalidPaymentState, "payment %s cannot complete from %s", p.ID, p.Status)
	}
	p.Status = PaymentStatusCompleted
	p.TransactionID = transactionID
	return nil
}

// MarkFailed 记录网关的拒绝码。重放时是空操作。
func (p *Payment) MarkFailed(errorCode string) error {
	if p.Status == PaymentStatusFailed {
		return nil
	}
	if p.Status != PaymentStatusPending {
		return errors.Wrapf(ErrInvalidPaymentState, "payment %s cannot fail from %s", p.ID, p.Status)
	}
	p.Status = PaymentStatusFailed
	p.ErrorCode = errorCode
	return nil
}
