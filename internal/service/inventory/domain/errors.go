// internal/service/inventory/domain/errors.go
package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInventoryNotFound 商品在台账中不存在。
	ErrInventoryNotFound = errors.New("inventory not found")
	// ErrInsufficientStock 业务规则失败：可售数量不足。
	// 触发同批次已完成预留的补偿释放，并向上游产生失败事件。
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationNotFound 调用方对一个从未预留过的订单做 confirm/release。
	// 必须与"无事可做"区分开，所以不是静默成功。
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationExpired 时序违例：confirm 到达时预留已被释放/过期。
	// 说明上游支付步骤相对 TTL 策略太慢，原样上抛，不做静默修复。
	ErrReservationExpired = errors.New("reservation expired")
	// ErrInvalidQuantity 零或负数的数量在边界被拒绝，不视为 no-op。
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidAdjustment 盘点修正会让台账违反不变量。
	ErrInvalidAdjustment = errors.New("adjustment would violate ledger invariant")
	// ErrInvariantViolated 台账不变量被破坏，属于代码 bug，永不静默。
	ErrInvariantViolated = errors.New("ledger invariant violated")
	// ErrDuplicateInventory 商品或 SKU 已有台账行。
	ErrDuplicateInventory = errors.New("inventory already exists")
	// ErrDuplicateReservation 同一 (orderId, productId) 的预留已存在。
	// 由唯一索引兜底并发的重复预留，输掉的一方重试后走重放路径。
	ErrDuplicateReservation = errors.New("reservation already exists")
)

// InsufficientStockError 携带了是哪个商品不足，调用方据此产生
// InventoryReservationFailed 事件。
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, available %d: %s",
		e.ProductID, e.Requested, e.Available, ErrInsufficientStock)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
