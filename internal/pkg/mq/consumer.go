// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"atlas/internal/pkg/logger"
)

const (
	consumeMaxRetries   = 3
	consumeRetryBackoff = 500 * time.Millisecond
)

// MessageHandler 处理一条消息。返回错误会触发有界重试，
// 重试耗尽后消息进死信主题。
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consumer 是通用的手动提交消费循环：FetchMessage、恢复追踪上下文、
// 调用 handler、失败进 DLT、提交 offset。作为 bootstrap.Runner 运行。
type Consumer struct {
	reader   *kafka.Reader
	handler  MessageHandler
	failures *FailureHandler
}

func NewConsumer(brokers []string, topic, groupID string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:   NewKafkaReader(brokers, topic, groupID),
		handler:  handler,
		failures: NewFailureHandler(brokers, topic),
	}
}

// Run 阻塞消费直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	defer c.failures.Close()

	cfg := c.reader.Config()
	logger.Ctx(ctx).Info().Str("topic", cfg.Topic).Str("group", cfg.GroupID).
		Msg("✅ kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("topic", cfg.Topic).Msg("🛑 kafka consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Str("topic", cfg.Topic).Msg("failed to fetch message, retrying")
			time.Sleep(time.Second)
			continue
		}

		msgCtx := ExtractTraceContext(ctx, msg.Headers)
		if err := c.process(msgCtx, msg); err != nil {
			c.failures.Handle(msgCtx, msg, err)
		}

		// 无论成功还是已进死信，都提交 offset。
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("topic", cfg.Topic).Msg("failed to commit offset")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 0; attempt <= consumeMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := consumeRetryBackoff * time.Duration(attempt)
			logger.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
				Str("key", string(msg.Key)).Msg("message handling failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return err
			}
		}
		if err = c.handler(ctx, msg); err == nil {
			return nil
		}
	}
	return err
}
