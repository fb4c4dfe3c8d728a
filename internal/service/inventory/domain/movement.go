// internal/service/inventory/domain/movement.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementType 库存流水类型。
type MovementType string

const (
	MovementTypeIn      MovementType = "IN"      // 入库
	MovementTypeOut     MovementType = "OUT"     // 确认出库
	MovementTypeReserve MovementType = "RESERVE" // 预占
	MovementTypeRelease MovementType = "RELEASE" // 释放（补偿或过期）
	MovementTypeAdjust  MovementType = "ADJUST"  // 人工盘点修正
)

// StockMovement 是只追加的审计流水。每一次数量变化记一条。
// 它只服务于对账和排查，任何控制流都不读它。
type StockMovement struct {
	ID        string       `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID string       `gorm:"type:char(36);not null;index:idx_movements_product_time" json:"productId"`
	SKU       string       `gorm:"size:50;not null" json:"sku"`
	Type      MovementType `gorm:"size:20;not null" json:"type"`
	Quantity  int          `gorm:"not null" json:"quantity"`
	Reference string       `gorm:"size:100" json:"reference,omitempty"`
	Reason    string       `gorm:"size:500" json:"reason,omitempty"`
	CreatedAt time.Time    `gorm:"autoCreateTime;index:idx_movements_product_time" json:"createdAt"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}

// NewMovement 构造一条流水。reference 一般是订单 ID 或盘点单号。
func NewMovement(productID, sku string, mt MovementType, quantity int, reference, reason string) *StockMovement {
	return &StockMovement{
		ID:        uuid.New().String(),
		ProductID: productID,
		SKU:       sku,
		Type:      mt,
		Quantity:  quantity,
		Reference: reference,
		Reason:    reason,
	}
}
