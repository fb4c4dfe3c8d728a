// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"atlas/internal/pkg/logger"
)

const (
	publishMaxAttempts = 5
	publishBaseBackoff = 200 * time.Millisecond
)

// NewKafkaReader 创建一个属于指定消费组的 Reader。
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // 手动提交
	})
}

// NewKafkaWriter 创建一个绑定单一主题的 Writer。
// 使用 Hash balancer：相同 key（订单 ID）的消息总是落在同一分区，
// 这是"单订单事件有序"保证的来源。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaHeaderCarrier 让 kafka 消息头实现 otel 的 TextMapCarrier 接口。
type KafkaHeaderCarrier []kafka.Header

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

// InjectTraceContext 将当前追踪上下文写入消息头。
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	carrier := KafkaHeaderCarrier(*headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	*headers = []kafka.Header(carrier)
}

// ExtractTraceContext 从消息头恢复追踪上下文。
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

// ProduceMessage 发布一条消息，失败时做有界退避重试。
// 调用方必须保证本地状态已先于发布持久化（publish-after-commit）；
// 重试耗尽后错误会返回给调用方，由其落到操作员可见的日志/告警，
// 绝不允许静默丢弃。
func ProduceMessage(ctx context.Context, writer *kafka.Writer, key, value []byte) error {
	msg := kafka.Message{Key: key, Value: value}
	InjectTraceContext(ctx, &msg.Headers)

	var err error
	for attempt := 1; attempt <= publishMaxAttempts; attempt++ {
		if err = writer.WriteMessages(ctx, msg); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		backoff := publishBaseBackoff * time.Duration(1<<(attempt-1))
		logger.Ctx(ctx).Warn().Err(err).
			Str("topic", writer.Topic).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("kafka publish failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
	}
	return err
}
