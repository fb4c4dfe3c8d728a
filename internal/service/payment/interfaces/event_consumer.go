// internal/service/payment/interfaces/event_consumer.go
package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/payment/application"
)

const consumerGroup = "payment-service"

// NewEventConsumers 构造支付服务的两个消费循环：
// 订单事件登记支付单，库存预留成功事件触发扣款。
func NewEventConsumers(brokers []string, handler *application.EventHandler) []bootstrap.Runner {
	topics := []string{
		events.TopicOrderEvents,
		events.TopicInventoryEvents,
	}
	runners := make([]bootstrap.Runner, 0, len(topics))
	for _, topic := range topics {
		c := mq.NewConsumer(brokers, topic, consumerGroup, envelopeHandler(handler))
		runners = append(runners, c.Run)
	}
	return runners
}

func envelopeHandler(handler *application.EventHandler) mq.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.ParseEnvelope(msg.Value)
		if err != nil {
			return err
		}
		return handler.Handle(ctx, env)
	}
}
