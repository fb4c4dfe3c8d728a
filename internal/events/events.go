// internal/events/events.go
//
// Package events 定义三个服务之间编排（choreography）契约：
// 主题、事件类型和每种事件的 payload 结构。
//
// 没有中心化的协调器进程，这份契约本身就是 Saga 的协议：
//   - 每个事件携带 eventId / eventType / timestamp，以及作为分区键的 orderId，
//     保证单个订单的事件被任意消费组按发布顺序处理；
//   - 传输层只承诺至少一次投递，消费方必须对 eventId 幂等；
//   - 预留失败是一个事件（InventoryReservationFailed），不是 HTTP 错误——
//     需要响应它的订单服务是异步消费者，不一定是同步调用方。
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 主题。分区键统一为订单 ID（StockLow 例外，用商品 ID）。
const (
	TopicOrderEvents     = "order-events"
	TopicInventoryEvents = "inventory-events"
	TopicPaymentEvents   = "payment-events"
)

// Type 是事件类型的标签。
type Type string

const (
	TypeOrderCreated   Type = "OrderCreated"
	TypeOrderCancelled Type = "OrderCancelled"

	TypeInventoryReservationRequested Type = "InventoryReservationRequested"
	TypeInventoryReserved             Type = "InventoryReserved"
	TypeInventoryReservationFailed    Type = "InventoryReservationFailed"
	TypeInventoryReleaseRequested     Type = "InventoryReleaseRequested"
	TypeInventoryReleased             Type = "InventoryReleased"
	TypeInventoryConfirmed            Type = "InventoryConfirmed"
	TypeStockLow                      Type = "StockLow"

	TypePaymentCompleted Type = "PaymentCompleted"
	TypePaymentFailed    Type = "PaymentFailed"
)

// SchemaVersion 当前契约版本。消费方拒绝更高版本而不是猜测语义。
const SchemaVersion = 1

// Envelope 是所有事件共享的信封。Payload 保持原始字节，
// 由 Decode 按 EventType 解出具体结构并校验。
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     Type            `json:"eventType"`
	SchemaVersion int             `json:"schemaVersion"`
	OrderID       string          `json:"orderId"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// LineItem 订单行项目。
type LineItem struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// ShippingAddress 收货地址快照。
type ShippingAddress struct {
	RecipientName string `json:"recipientName"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	Country       string `json:"country"`
}

type OrderCreated struct {
	OrderID         string          `json:"orderId"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          string          `json:"userId"`
	Items           []LineItem      `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	TotalAmount     int64           `json:"totalAmount"`
	Currency        string          `json:"currency"`
}

type OrderCancelled struct {
	OrderID      string    `json:"orderId"`
	CancelledAt  time.Time `json:"cancelledAt"`
	CancelReason string    `json:"cancelReason"`
}

type InventoryReservationRequested struct {
	OrderID string     `json:"orderId"`
	Items   []LineItem `json:"items"`
}

type InventoryReserved struct {
	OrderID    string    `json:"orderId"`
	ReservedAt time.Time `json:"reservedAt"`
}

type InventoryReservationFailed struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// ReasonInsufficientStock 是 InventoryReservationFailed.Reason 的业务取值。
const ReasonInsufficientStock = "InsufficientStock"

type InventoryReleaseRequested struct {
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

type InventoryReleased struct {
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

type InventoryConfirmed struct {
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

// StockLow 是告警旁路事件，不参与 Saga 控制流。
type StockLow struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Threshold int    `json:"threshold"`
}

type PaymentCompleted struct {
	PaymentID     string    `json:"paymentId"`
	OrderID       string    `json:"orderId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type PaymentFailed struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope 为 payload 构造信封。key 是分区/排序键，通常是订单 ID。
func NewEnvelope(eventType Type, source, key string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", eventType, err)
	}
	return &Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		OrderID:       key,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Payload:       raw,
	}, nil
}

// Marshal 序列化信封。
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Key 返回消息的分区键。
func (e *Envelope) Key() []byte {
	return []byte(e.OrderID)
}
