// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// OrderStatus 订单对用户可见的业务状态。
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"    // 已创建，等待库存预留和支付
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"  // 支付成功
	OrderStatusProcessing OrderStatus = "PROCESSING" // 库存已确认出库，履约中
	OrderStatusShipped    OrderStatus = "SHIPPED"    // 已发货
	OrderStatusDelivered  OrderStatus = "DELIVERED"  // 已送达，终态
	OrderStatusCancelled  OrderStatus = "CANCELLED"  // 已取消，终态
)

// SagaState 是订单行在 Saga 中走到哪一步的投影。
// 没有中心化的协调器，这个字段就是"saga 日志"：
// 每收到一个下游事件就推进一格，崩溃重启后从这里接着走。
type SagaState string

const (
	SagaStateCreated      SagaState = "CREATED"
	SagaStateReserved     SagaState = "STOCK_RESERVED"
	SagaStatePaid         SagaState = "PAID"
	SagaStateFulfilling   SagaState = "FULFILLING"
	SagaStateCompensating SagaState = "COMPENSATING"
	SagaStateCancelled    SagaState = "CANCELLED"
)

// OrderItem 订单行项目，下单时的数量与单价快照。
type OrderItem struct {
	ID        string `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID   string `gorm:"type:char(36);not null;index" json:"orderId"`
	ProductID string `gorm:"type:char(36);not null" json:"productId"`
	SKU       string `gorm:"size:50;not null" json:"sku"`
	Quantity  int    `gorm:"not null" json:"quantity"`
	UnitPrice int64  `gorm:"not null" json:"unitPrice"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Order 订单聚合根。
type Order struct {
	ID           string      `gorm:"type:char(36);primaryKey" json:"id"`
	OrderNumber  string      `gorm:"size:32;not null;uniqueIndex" json:"orderNumber"`
	UserID       string      `gorm:"type:char(36);not null;index" json:"userId"`
	Status       OrderStatus `gorm:"size:20;not null" json:"status"`
	SagaState    SagaState   `gorm:"size:20;not null" json:"sagaState"`
	TotalAmount  int64       `gorm:"not null" json:"totalAmount"`
	Currency     string      `gorm:"size:8;not null" json:"currency"`
	CancelReason string      `gorm:"size:500" json:"cancelReason,omitempty"`

	RecipientName string `gorm:"size:100" json:"recipientName"`
	StreetAddress string `gorm:"size:200" json:"streetAddress"`
	City          string `gorm:"size:100" json:"city"`
	Country       string `gorm:"size:100" json:"country"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Order) TableName() string {
	return "orders"
}

// NewOrderItem 构造一个行项目快照。
type NewOrderItem struct {
	ProductID string
	SKU       string
	Quantity  int
	UnitPrice int64
}

// ShippingAddress 下单时的收货地址。
type ShippingAddress struct {
	RecipientName string
	StreetAddress string
	City          string
	Country       string
}

// NewOrder 工厂函数：校验行项目并计算总额。
func NewOrder(userID string, items []NewOrderItem, addr ShippingAddress, currency string) (*Order, error) {
	if userID == "" {
		return nil, errors.Wrap(ErrInvalidOrder, "missing userId")
	}
	if len(items) == 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "order needs at least one item")
	}
	id := uuid.New().String()
	var total int64
	orderItems := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, errors.Wrap(ErrInvalidOrder, "item missing productId")
		}
		if it.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidOrder, "item %s: quantity must be positive", it.ProductID)
		}
		if it.UnitPrice < 0 {
			return nil, errors.Wrapf(ErrInvalidOrder, "item %s: negative unit price", it.ProductID)
		}
		total += it.UnitPrice * int64(it.Quantity)
		orderItems = append(orderItems, OrderItem{
			ID:        uuid.New().String(),
			OrderID:   id,
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return &Order{
		ID:            id,
		OrderNumber:   NewOrderNumber(),
		UserID:        userID,
		Status:        OrderStatusPending,
		SagaState:     SagaStateCreated,
		TotalAmount:   total,
		Currency:      currency,
		RecipientName: addr.RecipientName,
		StreetAddress: addr.StreetAddress,
		City:          addr.City,
		Country:       addr.Country,
		Items:         orderItems,
	}, nil
}

// NewOrderNumber 生成人类可读的订单号："ORD" + 时间戳 + 随机后缀。
// 唯一性最终由订单号上的唯一索引兜底。
func NewOrderNumber() string {
	return fmt.Sprintf("ORD%s%06d", time.Now().UTC().Format("20060102150405"), rand.Intn(1000000))
}

// Terminal 订单是否已到终态。
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// MarkStockReserved 库存预留成功。
func (o *Order) MarkStockReserved() error {
	if o.SagaState != SagaStateCreated {
		if o.SagaState == SagaStateReserved {
			return nil // 事件重放
		}
		return errors.Wrapf(ErrInvalidTransition, "saga %s cannot accept stock reservation", o.SagaState)
	}
	o.SagaState = SagaStateReserved
	return nil
}

// MarkPaid 支付成功，订单进入 CONFIRMED。
func (o *Order) MarkPaid() error {
	if o.SagaState == SagaStatePaid {
		return nil
	}
	if o.SagaState != SagaStateReserved {
		return errors.Wrapf(ErrInvalidTransition, "saga %s cannot accept payment", o.SagaState)
	}
	o.SagaState = SagaStatePaid
	o.Status = OrderStatusConfirmed
	return nil
}

// MarkFulfilling 库存确认出库，订单进入履约。
func (o *Order) MarkFulfilling() error {
	if o.SagaState == SagaStateFulfilling {
		return nil
	}
	if o.SagaState != SagaStatePaid {
		return errors.Wrapf(ErrInvalidTransition, "saga %s cannot start fulfilment", o.SagaState)
	}
	o.SagaState = SagaStateFulfilling
	o.Status = OrderStatusProcessing
	return nil
}

// Ship 发货。只有履约中的订单可以发货。
func (o *Order) Ship() error {
	if o.Status != OrderStatusProcessing {
		return errors.Wrapf(ErrInvalidTransition, "order %s cannot be shipped", o.Status)
	}
	o.Status = OrderStatusShipped
	return nil
}

// Deliver 确认送达，终态。
func (o *Order) Deliver() error {
	if o.Status != OrderStatusShipped {
		return errors.Wrapf(ErrInvalidTransition, "order %s cannot be delivered", o.Status)
	}
	o.Status = OrderStatusDelivered
	return nil
}

// StartCompensation 进入补偿：预留失败、支付失败或用户取消。
// 发货之后不允许再取消。
func (o *Order) StartCompensation(reason string) error {
	if o.SagaState == SagaStateCompensating || o.SagaState == SagaStateCancelled {
		return nil
	}
	switch o.Status {
	case OrderStatusShipped, OrderStatusDelivered:
		return errors.Wrapf(ErrInvalidTransition, "order %s cannot be cancelled after shipment", o.Status)
	}
	o.SagaState = SagaStateCompensating
	o.CancelReason = reason
	return nil
}

// MarkCancelled 补偿完成（库存已释放），订单到达取消终态。
func (o *Order) MarkCancelled() error {
	if o.SagaState == SagaStateCancelled {
		return nil
	}
	if o.SagaState != SagaStateCompensating {
		return errors.Wrapf(ErrInvalidTransition, "saga %s cannot finalize cancellation", o.SagaState)
	}
	o.SagaState = SagaStateCancelled
	o.Status = OrderStatusCancelled
	return nil
}
