// internal/service/order/interfaces/event_consumer.go
package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/order/application"
)

const consumerGroup = "order-service"

// NewEventConsumers 构造订单服务的两个消费循环：
// 库存事件推进 saga 状态（RESERVED / FULFILLING / 补偿），
// 支付事件推进 PAID 或触发补偿。
func NewEventConsumers(brokers []string, handler *application.SagaEventHandler) []bootstrap.Runner {
	topics := []string{
		events.TopicInventoryEvents,
		events.TopicPaymentEvents,
	}
	runners := make([]bootstrap.Runner, 0, len(topics))
	for _, topic := range topics {
		c := mq.NewConsumer(brokers, topic, consumerGroup, envelopeHandler(handler))
		runners = append(runners, c.Run)
	}
	return runners
}

func envelopeHandler(handler *application.SagaEventHandler) mq.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.ParseEnvelope(msg.Value)
		if err != nil {
			return err
		}
		return handler.Handle(ctx, env)
	}
}
