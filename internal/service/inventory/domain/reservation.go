// internal/service/inventory/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus 预留的生命周期状态。
// RESERVED 是唯一的非终态；离开 RESERVED 的每一种路径
// 都必须恰好一次地归还台账上的 Reserved 份额。
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED" // 终态：出库成功
	ReservationStatusReleased  ReservationStatus = "RELEASED"  // 终态：补偿释放
	ReservationStatusExpired   ReservationStatus = "EXPIRED"   // 终态：超时由清扫器释放
)

// Reservation 是对一个订单行项目的临时占用，带有限生存期。
// 以 (orderId, productId) 标识；一个订单持有一批预留，每个行项目一条。
type Reservation struct {
	ID          string            `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID     string            `gorm:"type:char(36);not null;uniqueIndex:idx_reservations_order_product" json:"orderId"`
	ProductID   string            `gorm:"type:char(36);not null;uniqueIndex:idx_reservations_order_product" json:"productId"`
	SKU         string            `gorm:"size:50;not null" json:"sku"`
	Quantity    int               `gorm:"not null" json:"quantity"`
	Status      ReservationStatus `gorm:"size:20;not null;default:'RESERVED'" json:"status"`
	ExpiresAt   time.Time         `gorm:"not null;index" json:"expiresAt"`
	ConfirmedAt *time.Time        `json:"confirmedAt,omitempty"`
	ReleasedAt  *time.Time        `json:"releasedAt,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Reservation) TableName() string {
	return "reservations"
}

// NewReservation 创建一条 RESERVED 状态的预留。
func NewReservation(orderID, productID, sku string, quantity int, expiresAt time.Time) *Reservation {
	return &Reservation{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		ProductID: productID,
		SKU:       sku,
		Quantity:  quantity,
		Status:    ReservationStatusReserved,
		ExpiresAt: expiresAt,
	}
}

// Active 预留是否仍占用台账份额。
func (r *Reservation) Active() bool {
	return r.Status == ReservationStatusReserved
}

// Terminal 预留是否已到终态。
func (r *Reservation) Terminal() bool {
	return r.Status != ReservationStatusReserved
}

// IsExpired 是否已过期（只对 RESERVED 有意义）。
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// MarkConfirmed 转入 CONFIRMED 终态。
func (r *Reservation) MarkConfirmed(now time.Time) error {
	if r.Status != ReservationStatusReserved {
		return ErrReservationExpired
	}
	r.Status = ReservationStatusConfirmed
	r.ConfirmedAt = &now
	return nil
}

// MarkReleased 转入 RELEASED 终态。
func (r *Reservation) MarkReleased(now time.Time) error {
	if r.Status != ReservationStatusReserved {
		return ErrReservationExpired
	}
	r.Status = ReservationStatusReleased
	r.ReleasedAt = &now
	return nil
}

// MarkExpired 转入 EXPIRED 终态。与 RELEASED 的唯一区别是可观测性：
// 运维能区分"主动补偿"和"超时清扫"。
func (r *Reservation) MarkExpired(now time.Time) error {
	if r.Status != ReservationStatusReserved {
		return ErrReservationExpired
	}
	r.Status = ReservationStatusExpired
	r.ReleasedAt = &now
	return nil
}
