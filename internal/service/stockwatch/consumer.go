// internal/service/stockwatch/consumer.go
package stockwatch

import (
	"context"

	"github.com/segmentio/kafka-go"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
)

const consumerGroup = "stock-watch"

// NewEventConsumer 消费 inventory-events 并把事件原样广播给订阅者。
// 纯展示链路：解析失败直接丢弃，不值得走死信。
func NewEventConsumer(brokers []string, hub *Hub) bootstrap.Runner {
	c := mq.NewConsumer(brokers, events.TopicInventoryEvents, consumerGroup, func(ctx context.Context, msg kafka.Message) error {
		env, err := events.ParseEnvelope(msg.Value)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("malformed envelope on watch stream, dropping")
			return nil
		}
		hub.Broadcast(productIDOf(env), msg.Value)
		return nil
	})
	return c.Run
}

// productIDOf 提取事件关联的商品，用于按商品过滤的订阅。
// 订单级事件没有单一商品，返回空串让 hub 全量广播。
func productIDOf(env *events.Envelope) string {
	payload, err := events.Decode(env)
	if err != nil {
		return ""
	}
	switch p := payload.(type) {
	case events.StockLow:
		return p.ProductID
	case events.InventoryReservationFailed:
		return p.ProductID
	default:
		return ""
	}
}
