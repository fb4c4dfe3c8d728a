// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"atlas/internal/pkg/logger"
)

// 死信消息头，记录消息的原始坐标，便于事后排查和重放。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
)

// DLTSuffix 附加在原主题名后构成死信主题。
const DLTSuffix = ".dlt"

// FailureHandler 负责处理消费失败的消息：写入对应的死信主题。
// 瞬时错误的重试发生在 handler 内部；走到这里的消息被认为不可恢复
// （格式错误、未知事件类型、业务上无法处理）。
type FailureHandler struct {
	dltWriter *kafka.Writer
}

// NewFailureHandler 为指定源主题创建失败处理器。
func NewFailureHandler(brokers []string, sourceTopic string) *FailureHandler {
	return &FailureHandler{
		dltWriter: NewKafkaWriter(brokers, sourceTopic+DLTSuffix),
	}
}

// Handle 将失败消息连同原始坐标头写入死信主题。
// 死信写入自身失败只能记日志——此时消息内容已完整落在日志里。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		),
	}

	if err := h.dltWriter.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("original_topic", msg.Topic).
			Str("key", string(msg.Key)).
			Str("value", string(msg.Value)).
			AnErr("cause", cause).
			Msg("🚨 CRITICAL: failed to park message on DLT")
		return
	}

	logger.Ctx(ctx).Error().
		Str("original_topic", msg.Topic).
		Str("key", string(msg.Key)).
		AnErr("cause", cause).
		Msg("message parked on DLT")
}

// Close 关闭死信 Writer。
func (h *FailureHandler) Close() error {
	return h.dltWriter.Close()
}
