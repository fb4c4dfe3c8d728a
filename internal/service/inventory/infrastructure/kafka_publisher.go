// internal/service/inventory/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/mq"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher 把库存服务的全部出站事件发到 inventory-events 主题。
// Writer 在启动时显式构造并绑定主题，不做任何惰性初始化。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(brokers []string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: mq.NewKafkaWriter(brokers, events.TopicInventoryEvents),
	}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return errors.Wrapf(err, "marshal %s", env.EventType)
	}
	return mq.ProduceMessage(ctx, p.writer, env.Key(), value)
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
