// internal/service/payment/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/mq"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher 把支付结果事件发到 payment-events 主题。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(brokers []string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: mq.NewKafkaWriter(brokers, events.TopicPaymentEvents),
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
