// internal/service/payment/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"atlas/internal/service/payment/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormPaymentRepository 是 domain.PaymentRepository 的 GORM 实现。
type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(domain.ErrDuplicatePayment, "order %s", payment.OrderID)
	}
	return err
}

func (r *GormPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrPaymentNotFound, "order %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
