// internal/pkg/mq/dlt.go
package mq

import (
	"context"

	"github.com/segmentio/kafka-go"

	"atlas/internal/pkg/logger"
)

// DLTMonitor 监听一个死信主题并结构化记录每条死信，
// 供运维告警和人工重放。死信没有自动恢复路径。
type DLTMonitor struct {
	reader *kafka.Reader
}

// NewDLTMonitor sourceTopic 是原始主题名，不带 .dlt 后缀。
func NewDLTMonitor(brokers []string, sourceTopic, groupID string) *DLTMonitor {
	return &DLTMonitor{
		reader: NewKafkaReader(brokers, sourceTopic+DLTSuffix, groupID),
	}
}

// Run 作为 bootstrap.Runner 运行，ctx 取消后退出。
func (m *DLTMonitor) Run(ctx context.Context) error {
	defer m.reader.Close()
	topic := m.reader.Config().Topic
	logger.Ctx(ctx).Info().Str("topic", topic).Msg("✅ DLT monitor started")

	for {
		msg, err := m.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("topic", topic).Msg("🛑 DLT monitor shutting down")
				return nil
			}
			continue
		}

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		logger.Ctx(ctx).Error().
			Str("reason", "dead_letter_message_received").
			Str("original_topic", headers[HeaderOriginalTopic]).
			Str("original_partition", headers[HeaderOriginalPartition]).
			Str("original_offset", headers[HeaderOriginalOffset]).
			Str("exception_message", headers[HeaderExceptionMessage]).
			Str("key", string(msg.Key)).
			Str("value", string(msg.Value)).
			Msg("🚨 CRITICAL: dead letter message received")
	}
}
