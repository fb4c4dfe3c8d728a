// internal/service/inventory/interfaces/event_consumer.go
package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/inventory/application"
)

const consumerGroup = "inventory-service"

// NewEventConsumers 构造库存服务的三个消费循环：
// 订单事件（建立/释放预留）、支付事件（确认/补偿）、
// 以及 inventory-events 上的显式请求事件。
// 每个都作为 bootstrap.Runner 随服务启停。
func NewEventConsumers(brokers []string, handler *application.EventHandler) []bootstrap.Runner {
	topics := []string{
		events.TopicOrderEvents,
		events.TopicPaymentEvents,
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
			// 畸形信封重试也没用，直接让消费循环送进死信。
			return err
		}
		return handler.Handle(ctx, env)
	}
}
