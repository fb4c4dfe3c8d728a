// internal/events/codec.go
package events

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// 消费边界的错误类别。畸形或未知的消息在这里被快速拒绝，
// 带着明确的错误种类，而不是在 handler 深处炸出空指针。
var (
	ErrMalformedEnvelope  = errors.New("malformed event envelope")
	ErrMalformedPayload   = errors.New("malformed event payload")
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)

// ParseEnvelope 解析并校验消息信封。
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, errors.Wrap(ErrMalformedEnvelope, "missing eventId or eventType")
	}
	if env.SchemaVersion > SchemaVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "got %d, support up to %d", env.SchemaVersion, SchemaVersion)
	}
	return &env, nil
}

// Decode 将信封的 payload 解出为具体事件类型并校验必填字段。
func Decode(env *Envelope) (interface{}, error) {
	var (
		out interface{}
		err error
	)
	switch env.EventType {
	case TypeOrderCreated:
		out, err = decodeInto[OrderCreated](env)
	case TypeOrderCancelled:
		out, err = decodeInto[OrderCancelled](env)
	case TypeInventoryReservationRequested:
		out, err = decodeInto[InventoryReservationRequested](env)
	case TypeInventoryReserved:
		out, err = decodeInto[InventoryReserved](env)
	case TypeInventoryReservationFailed:
		out, err = decodeInto[InventoryReservationFailed](env)
	case TypeInventoryReleaseRequested:
		out, err = decodeInto[InventoryReleaseRequested](env)
	case TypeInventoryReleased:
		out, err = decodeInto[InventoryReleased](env)
	case TypeInventoryConfirmed:
		out, err = decodeInto[InventoryConfirmed](env)
	case TypeStockLow:
		out, err = decodeInto[StockLow](env)
	case TypePaymentCompleted:
		out, err = decodeInto[PaymentCompleted](env)
	case TypePaymentFailed:
		out, err = decodeInto[PaymentFailed](env)
	default:
		return nil, errors.Wrapf(ErrUnknownEventType, "%q", env.EventType)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto[T any](env *Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, errors.Wrapf(ErrMalformedPayload, "%s: %v", env.EventType, err)
	}
	if v, ok := any(payload).(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return payload, errors.Wrapf(ErrMalformedPayload, "%s: %v", env.EventType, err)
		}
	}
	return payload, nil
}

func (p OrderCreated) validate() error {
	if p.OrderID == "" || p.UserID == "" {
		return fmt.Errorf("missing orderId or userId")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("empty items")
	}
	return validateItems(p.Items)
}

func (p OrderCancelled) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}
	return nil
}

func (p InventoryReservationRequested) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("empty items")
	}
	return validateItems(p.Items)
}

func (p InventoryReserved) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}
	return nil
}

func (p InventoryReservationFailed) validate() error {
	if p.OrderID == "" || p.Reason == "" {
		return fmt.Errorf("missing orderId or reason")
	}
	return nil
}

func (p InventoryReleaseRequested) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}
	return nil
}

func (p InventoryReleased) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}
	return nil
}

func (p InventoryConfirmed) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}
	return nil
}

func (p StockLow) validate() error {
	if p.ProductID == "" {
		return fmt.Errorf("missing productId")
	}
	if p.Threshold < 0 {
		return fmt.Errorf("negative threshold")
	}
	return nil
}

func (p PaymentCompleted) validate() error {
	if p.PaymentID == "" || p.OrderID == "" {
		return fmt.Errorf("missing paymentId or orderId")
	}
	return nil
}

func (p PaymentFailed) validate() error {
	if p.PaymentID == "" || p.OrderID == "" {
		return fmt.Errorf("missing paymentId or orderId")
	}
	return nil
}

func validateItems(items []LineItem) error {
	for _, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("item missing productId")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %s: quantity must be positive", item.ProductID)
		}
	}
	return nil
}
