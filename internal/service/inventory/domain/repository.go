// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// TxStore 让运行在商品行锁内的变更函数把预留和流水写进同一个事务。
type TxStore interface {
	ReservationByID(ctx context.Context, id string) (*Reservation, error)
	CreateReservation(ctx context.Context, r *Reservation) error
	UpdateReservation(ctx context.Context, r *Reservation) error
	CreateMovement(ctx context.Context, m *StockMovement) error
}

// Repository 是库存侧的持久化端口，由 GORM 实现，测试用内存假实现。
//
// Mutate 是整个台账的并发纪律所在：fn 在对应商品行的行级锁
// (SELECT ... FOR UPDATE) 下执行，fn 返回 nil 后台账行在同一事务内保存。
// 不同商品的 Mutate 互不阻塞；同一商品的所有写操作被串行化。
type Repository interface {
	CreateInventory(ctx context.Context, inv *Inventory) error
	InventoryByProductID(ctx context.Context, productID string) (*Inventory, error)
	InventoryBySKU(ctx context.Context, sku string) (*Inventory, error)
	ListInventories(ctx context.Context, limit, offset int) ([]Inventory, error)
	LowStock(ctx context.Context) ([]Inventory, error)

	Mutate(ctx context.Context, productID string, fn func(tx TxStore, inv *Inventory) error) error

	ReservationsByOrderID(ctx context.Context, orderID string) ([]Reservation, error)
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	MovementsByProductID(ctx context.Context, productID string, limit int) ([]StockMovement, error)
}

// ReserveItem 一次预留请求中的一个行项目。
type ReserveItem struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// AlertRule 决定一次台账变更是否触发低库存告警。
// 具体规则是一条可配置的 CEL 表达式。
type AlertRule interface {
	ShouldAlert(inv *Inventory) (bool, error)
}
