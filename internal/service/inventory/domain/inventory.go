// internal/service/inventory/domain/inventory.go
package domain

import (
	"time"

	"github.com/pkg/errors"
)

// Inventory 是库存台账：每个商品一行，是可售数量的唯一权威记录。
//
// 不变量：任何时刻 0 <= Reserved <= Quantity。
// 可售数量 available 永远是推导值 (Quantity - Reserved)，不落库，
// 不存在"漂移后修数"的问题。
type Inventory struct {
	ID                string    `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID         string    `gorm:"type:char(36);not null;uniqueIndex" json:"productId"`
	SKU               string    `gorm:"size:50;not null;uniqueIndex" json:"sku"`
	Quantity          int       `gorm:"not null;default:0" json:"quantity"`
	Reserved          int       `gorm:"not null;default:0" json:"reserved"`
	LowStockThreshold int       `gorm:"not null;default:10" json:"lowStockThreshold"`
	WarehouseID       string    `gorm:"size:50;default:'DEFAULT'" json:"warehouseId"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Inventory) TableName() string {
	return "inventories"
}

// Available 返回当前可售数量。
func (inv *Inventory) Available() int {
	return inv.Quantity - inv.Reserved
}

// CheckInvariant 校验台账不变量。每次变更提交前调用，
// 违反说明上层逻辑有 bug，宁可让操作失败也不能把坏数据写进台账。
func (inv *Inventory) CheckInvariant() error {
	if inv.Reserved < 0 || inv.Reserved > inv.Quantity {
		return errors.Wrapf(ErrInvariantViolated,
			"product %s: quantity=%d reserved=%d", inv.ProductID, inv.Quantity, inv.Reserved)
	}
	return nil
}
